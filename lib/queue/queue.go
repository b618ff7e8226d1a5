package queue

import (
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

var (
	// ErrTimeout is returned by Get when no item arrives within the bound.
	ErrTimeout = oops.Errorf("queue get timed out")
	// ErrQueueUnknown is returned when the queue directory does not exist.
	ErrQueueUnknown = oops.Errorf("queue does not exist")
)

// Queue is a named, persistent, concurrency-safe FIFO of opaque string
// items. Items must be single-line tokens; the envelope layer guarantees
// that by encoding everything it enqueues.
//
// Implementations must tolerate unrelated OS processes calling Put and
// Get on the same path concurrently.
type Queue interface {
	// Init creates the queue state at path. Idempotent.
	Init(path string) error
	// Destroy removes the queue and any items still in it.
	Destroy(path string) error
	// Put appends an item.
	Put(path, item string) error
	// Get removes and returns the oldest item. timeout < 0 waits
	// indefinitely, timeout == 0 is non-blocking, timeout > 0 bounds the
	// wait. Returns ErrTimeout when the bound elapses with the queue empty.
	Get(path string, timeout time.Duration) (string, error)
	// ForEach invokes fn on each current item in FIFO order without
	// consuming. Iteration stops at the first error from fn, which is
	// returned.
	ForEach(path string, fn func(item string) error) error
}
