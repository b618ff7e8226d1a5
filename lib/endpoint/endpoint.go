package endpoint

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-i2p/logger"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/go-i2p/go-ipc/lib/config"
	"github.com/go-i2p/go-ipc/lib/envelope"
	"github.com/go-i2p/go-ipc/lib/queue"
	"github.com/go-i2p/go-ipc/lib/signer"
	"github.com/go-i2p/go-ipc/lib/util"
)

var log = logger.GetGoI2PLogger()

var (
	// ErrEndpointUnknown means the destination endpoint's queue does not
	// exist under the IPC root.
	ErrEndpointUnknown = oops.Errorf("endpoint unknown")
	// ErrNotAnEndpoint means a directory exists at the endpoint's path but
	// was not produced by Open (its queue/ and subscriptions/ entries are
	// missing).
	ErrNotAnEndpoint = oops.Errorf("directory is not an endpoint")
)

// groupDirMode is applied to every directory Open creates: group rwx plus
// setgid so co-owning processes of the same group inherit access.
const groupDirMode = 0o770 | os.ModeSetgid

// MessageFunc is invoked by ForEachMessage for each queued envelope
// token, oldest first.
type MessageFunc func(endpointName, envelopeToken string, args ...interface{}) error

// Endpoints operates the endpoint namespace under one IPC configuration.
// Any number of Endpoints values across unrelated processes may work the
// same namespace concurrently; the filesystem is the only shared state.
type Endpoints struct {
	cfg    *config.IPCConfig
	signer *signer.Signer
	q      queue.Queue
}

// New creates an Endpoints backed by the filesystem queue.
func New(cfg *config.IPCConfig, s *signer.Signer) *Endpoints {
	return NewWithQueue(cfg, s, queue.NewFSQueue())
}

// NewWithQueue substitutes the queue implementation.
func NewWithQueue(cfg *config.IPCConfig, s *signer.Signer, q queue.Queue) *Endpoints {
	return &Endpoints{cfg: cfg, signer: s, q: q}
}

// Open creates or re-opens the named endpoint and returns its name. An
// empty name synthesizes a unique anonymous endpoint under priv/.
//
// Re-opening an existing endpoint is idempotent, but only when the
// directory carries the queue/ and subscriptions/ entries a previous Open
// made; any other directory at that path is rejected.
func (e *Endpoints) Open(name string) (string, error) {
	if name == "" {
		name = anonymousName()
		log.WithField("endpoint", name).Debug("Synthesized anonymous endpoint name")
	}

	dir := e.cfg.EndpointDir(name)
	if util.CheckFileExists(dir) {
		if !util.CheckFileExists(e.cfg.QueueDir(name)) ||
			!util.CheckFileExists(e.cfg.SubscriptionsDir(name)) {
			return "", fmt.Errorf("%w: %s", ErrNotAnEndpoint, name)
		}
		log.WithField("endpoint", name).Debug("Endpoint already open")
		return name, nil
	}

	if err := e.create(name); err != nil {
		return "", err
	}
	log.WithField("endpoint", name).Debug("Opened endpoint")
	return name, nil
}

func (e *Endpoints) create(name string) error {
	dir := e.cfg.EndpointDir(name)

	// Record which directories MkdirAll actually creates so the setgid
	// bit lands on every new level, not on pre-existing parents.
	created := missingParents(dir)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return oops.Wrapf(err, "create endpoint %s", name)
	}

	fail := func(err error) error {
		// Best-effort cleanup: a half-made endpoint must not satisfy a
		// later Open.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.WithError(rmErr).Warn("Failed to clean up partial endpoint")
		}
		return err
	}

	if err := e.q.Init(e.cfg.QueueDir(name)); err != nil {
		return fail(oops.Wrapf(err, "init queue for %s", name))
	}
	if err := os.Mkdir(e.cfg.SubscriptionsDir(name), 0o770); err != nil {
		return fail(oops.Wrapf(err, "create subscriptions dir for %s", name))
	}
	owner := util.CurrentUser()
	if err := os.WriteFile(e.cfg.OwnerFile(name), []byte(owner+"\n"), 0o660); err != nil {
		return fail(oops.Wrapf(err, "write owner file for %s", name))
	}

	created = append(created, e.cfg.QueueDir(name), e.cfg.SubscriptionsDir(name))
	for _, d := range created {
		if err := os.Chmod(d, groupDirMode); err != nil {
			log.WithError(err).WithField("dir", d).Warn("Failed to set group permissions")
		}
	}
	return nil
}

// missingParents lists dir and each ancestor that does not exist yet,
// deepest last.
func missingParents(dir string) []string {
	var missing []string
	for d := dir; d != "/" && d != "."; d = filepath.Dir(d) {
		if util.CheckFileExists(d) {
			break
		}
		missing = append([]string{d}, missing...)
	}
	return missing
}

// anonymousName builds priv/<user>.<prog>.<pid>.<epoch>.<nonce>. Every
// component that could contain a separator is flattened so the name stays
// a two-level path.
func anonymousName() string {
	nonce := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s/%s.%s.%d.%d.%s",
		config.PrivPrefix,
		config.FlatName(util.CurrentUser()),
		config.FlatName(util.ProgramName()),
		os.Getpid(),
		time.Now().Unix(),
		nonce,
	)
}

// Close tears the endpoint down: queue first (failure aborts), then the
// pub/sub side of every subscription (failures logged, close continues),
// then the endpoint directory itself.
func (e *Endpoints) Close(name string) error {
	if err := e.q.Destroy(e.cfg.QueueDir(name)); err != nil {
		return oops.Wrapf(err, "destroy queue for %s", name)
	}

	for _, topic := range e.subscribedTopics(name) {
		link := e.cfg.SubscriberLink(topic, name)
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithFields(logger.Fields{
				"endpoint": name,
				"topic":    topic,
			}).Warn("Failed to remove subscriber link during close")
		}
	}

	if err := os.RemoveAll(e.cfg.EndpointDir(name)); err != nil {
		return oops.Wrapf(err, "remove endpoint %s", name)
	}
	log.WithField("endpoint", name).Debug("Closed endpoint")
	return nil
}

// subscribedTopics walks subscriptions/ collecting topic names; a topic
// name may span directories (t/x), so symlink depth gives the name.
func (e *Endpoints) subscribedTopics(name string) []string {
	root := e.cfg.SubscriptionsDir(name)
	var topics []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		topics = append(topics, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("endpoint", name).Warn("Failed to enumerate subscriptions")
	}
	return topics
}

// Send signs data into an envelope and enqueues it on the destination's
// queue. The topic is carried through for pub/sub deliveries and empty
// for point-to-point sends.
func (e *Endpoints) Send(source, destination string, data []byte, topic string) error {
	queueDir := e.cfg.QueueDir(destination)
	if !util.CheckFileExists(queueDir) {
		return fmt.Errorf("%w: %s", ErrEndpointUnknown, destination)
	}

	token, err := envelope.New(e.signer, source, destination, data, topic)
	if err != nil {
		return err
	}
	if err := e.q.Put(queueDir, token); err != nil {
		return oops.Wrapf(err, "enqueue to %s", destination)
	}
	log.WithFields(logger.Fields{
		"source":      source,
		"destination": destination,
		"bytes":       len(data),
	}).Debug("Sent message")
	return nil
}

// Recv blocks for the next envelope token on the endpoint's queue.
// timeout < 0 waits indefinitely, 0 polls, > 0 bounds the wait; an empty
// queue at the bound returns queue.ErrTimeout. The token is returned
// unvalidated: receivers that care about authenticity parse and validate
// it themselves.
func (e *Endpoints) Recv(name string, timeout time.Duration) (string, error) {
	queueDir := e.cfg.QueueDir(name)
	if !util.CheckFileExists(queueDir) {
		return "", fmt.Errorf("%w: %s", ErrEndpointUnknown, name)
	}
	token, err := e.q.Get(queueDir, timeout)
	if err != nil {
		return "", err
	}
	log.WithField("endpoint", name).Debug("Received message")
	return token, nil
}

// ForEachMessage invokes fn over the endpoint's current queue contents in
// FIFO order without consuming them.
func (e *Endpoints) ForEachMessage(name string, fn MessageFunc, args ...interface{}) error {
	queueDir := e.cfg.QueueDir(name)
	if !util.CheckFileExists(queueDir) {
		return fmt.Errorf("%w: %s", ErrEndpointUnknown, name)
	}
	return e.q.ForEach(queueDir, func(item string) error {
		return fn(name, item, args...)
	})
}

// Config exposes the namespace configuration, letting the pub/sub router
// share one threaded record.
func (e *Endpoints) Config() *config.IPCConfig {
	return e.cfg
}
