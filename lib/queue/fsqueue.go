package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
)

// pollInterval is the fallback rescan cadence for blocking Get. The
// fsnotify watcher normally wakes the consumer first; the tick covers
// filesystems that do not deliver events (network mounts).
const pollInterval = 250 * time.Millisecond

// seq disambiguates items enqueued within the same nanosecond by one
// process.
var seq atomic.Uint64

// FSQueue stores one file per item inside the queue directory. Item files
// are named <unix-nanos>.<pid>.<seq>, so lexicographic order is FIFO
// order for any single producer. Consumers claim an item by renaming it
// to a consumer-private name; rename is atomic, so concurrent consumers
// never read the same item twice.
type FSQueue struct{}

func NewFSQueue() *FSQueue {
	return &FSQueue{}
}

func (q *FSQueue) Init(path string) error {
	if err := os.MkdirAll(path, 0o770); err != nil {
		return oops.Wrapf(err, "init queue %s", path)
	}
	log.WithField("path", path).Debug("Initialized queue directory")
	return nil
}

func (q *FSQueue) Destroy(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return oops.Wrapf(err, "destroy queue %s", path)
	}
	log.WithField("path", path).Debug("Destroyed queue directory")
	return nil
}

func (q *FSQueue) Put(path, item string) error {
	if strings.ContainsRune(item, '\n') {
		return oops.Errorf("queue item contains a newline")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrQueueUnknown, path)
	}

	name := fmt.Sprintf("%019d.%07d.%06d", time.Now().UnixNano(), os.Getpid(), seq.Add(1))
	tmp := filepath.Join(path, ".tmp."+name)
	if err := os.WriteFile(tmp, []byte(item), 0o660); err != nil {
		return oops.Wrapf(err, "write queue item")
	}
	if err := os.Rename(tmp, filepath.Join(path, name)); err != nil {
		os.Remove(tmp)
		return oops.Wrapf(err, "commit queue item")
	}
	log.WithField("item", name).Debug("Enqueued item")
	return nil
}

func (q *FSQueue) Get(path string, timeout time.Duration) (string, error) {
	item, ok, err := q.tryGet(path)
	if err != nil {
		return "", err
	}
	if ok {
		return item, nil
	}
	if timeout == 0 {
		return "", ErrTimeout
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("fsnotify unavailable, falling back to polling")
		watcher = nil
	} else {
		defer watcher.Close()
		if werr := watcher.Add(path); werr != nil {
			log.WithError(werr).Warn("Cannot watch queue directory, falling back to polling")
			watcher = nil
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		// Re-scan after arming the watcher: an item put between the first
		// scan and watcher.Add would otherwise be missed until the tick.
		item, ok, err := q.tryGet(path)
		if err != nil {
			return "", err
		}
		if ok {
			return item, nil
		}

		var timer *time.Timer
		var expired <-chan time.Time
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", ErrTimeout
			}
			timer = time.NewTimer(remaining)
			expired = timer.C
		}

		var events chan fsnotify.Event
		var watchErrs chan error
		if watcher != nil {
			events = watcher.Events
			watchErrs = watcher.Errors
		}

		select {
		case <-events:
		case werr := <-watchErrs:
			log.WithError(werr).Warn("Queue watcher error")
		case <-ticker.C:
		case <-expired:
			return "", ErrTimeout
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// tryGet claims the oldest item, if any. ok is false on an empty queue.
func (q *FSQueue) tryGet(path string) (string, bool, error) {
	names, err := q.itemNames(path)
	if err != nil {
		return "", false, err
	}
	for _, name := range names {
		claim := filepath.Join(path, fmt.Sprintf(".claim.%d.%d", os.Getpid(), seq.Add(1)))
		if err := os.Rename(filepath.Join(path, name), claim); err != nil {
			// Another consumer won the race for this item.
			continue
		}
		data, err := os.ReadFile(claim)
		if err != nil {
			return "", false, oops.Wrapf(err, "read claimed item %s", name)
		}
		if err := os.Remove(claim); err != nil {
			log.WithError(err).Warn("Failed to remove claimed queue item")
		}
		log.WithField("item", name).Debug("Dequeued item")
		return string(data), true, nil
	}
	return "", false, nil
}

func (q *FSQueue) ForEach(path string, fn func(item string) error) error {
	names, err := q.itemNames(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			if os.IsNotExist(err) {
				// Claimed by a concurrent Get between listing and reading.
				continue
			}
			return oops.Wrapf(err, "read queue item %s", name)
		}
		if err := fn(string(data)); err != nil {
			return err
		}
	}
	return nil
}

// itemNames lists committed items in FIFO order. Dotfiles are in-flight
// tmp writes and claims, never items.
func (q *FSQueue) itemNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrQueueUnknown, path)
		}
		return nil, oops.Wrapf(err, "list queue %s", path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
