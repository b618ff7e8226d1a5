package pubsub

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-i2p/go-ipc/lib/config"
	"github.com/go-i2p/go-ipc/lib/endpoint"
	"github.com/go-i2p/go-ipc/lib/util"
)

var log = logger.GetGoI2PLogger()

// ErrNotSubscribed is returned by Unsubscribe when neither half of the
// link pair exists.
var ErrNotSubscribed = oops.Errorf("endpoint not subscribed to topic")

// PubSub routes published payloads through the topic namespace. A topic
// is a directory of symlinks, one per subscriber; publishing fans out by
// enumerating them. Delivery is fire-and-forget: per-subscriber failures
// are logged and skipped, never retried.
type PubSub struct {
	cfg *config.IPCConfig
	eps *endpoint.Endpoints
}

func New(cfg *config.IPCConfig, eps *endpoint.Endpoints) *PubSub {
	return &PubSub{cfg: cfg, eps: eps}
}

// Subscribe establishes the two-way link pair between an endpoint and a
// topic: <pubsub>/<topic>/<flat-endpoint> naming the endpoint, and
// <endpoint>/subscriptions/<topic> pointing at the topic directory. The
// pair is committed via atomic symlink creation; if the endpoint-side
// link cannot be made, the topic-side link is removed again so the graph
// never holds half a subscription. Re-subscribing is idempotent.
func (p *PubSub) Subscribe(endpointName, topic string) error {
	if !util.CheckFileExists(p.cfg.EndpointDir(endpointName)) {
		return oops.Wrapf(endpoint.ErrEndpointUnknown, "subscribe %s", endpointName)
	}
	if err := p.ensureTopic(topic); err != nil {
		return err
	}

	subscriberLink := p.cfg.SubscriberLink(topic, endpointName)
	if err := os.Symlink(endpointName, subscriberLink); err != nil {
		if os.IsExist(err) {
			log.WithFields(logger.Fields{
				"endpoint": endpointName,
				"topic":    topic,
			}).Debug("Already subscribed")
			return nil
		}
		return oops.Wrapf(err, "create subscriber link for %s", endpointName)
	}

	subscriptionLink := p.cfg.SubscriptionLink(endpointName, topic)
	if err := os.MkdirAll(filepath.Dir(subscriptionLink), 0o770); err != nil {
		p.rollbackSubscriberLink(subscriberLink)
		return oops.Wrapf(err, "create subscription path for %s", endpointName)
	}
	if err := os.Symlink(p.cfg.TopicDir(topic), subscriptionLink); err != nil && !os.IsExist(err) {
		p.rollbackSubscriberLink(subscriberLink)
		return oops.Wrapf(err, "create subscription link for %s", endpointName)
	}

	log.WithFields(logger.Fields{
		"endpoint": endpointName,
		"topic":    topic,
	}).Debug("Subscribed")
	return nil
}

func (p *PubSub) rollbackSubscriberLink(link string) {
	if err := os.Remove(link); err != nil {
		log.WithError(err).Warn("Failed to roll back subscriber link")
	}
}

// Unsubscribe removes both halves of the link pair, tolerating an
// already-missing half so a crashed half-torn subscription can still be
// cleaned up.
func (p *PubSub) Unsubscribe(endpointName, topic string) error {
	removed := false

	err := os.Remove(p.cfg.SubscriberLink(topic, endpointName))
	if err == nil {
		removed = true
	} else if !os.IsNotExist(err) {
		return oops.Wrapf(err, "remove subscriber link for %s", endpointName)
	}

	err = os.Remove(p.cfg.SubscriptionLink(endpointName, topic))
	if err == nil {
		removed = true
	} else if !os.IsNotExist(err) {
		return oops.Wrapf(err, "remove subscription link for %s", endpointName)
	}

	if !removed {
		return ErrNotSubscribed
	}
	log.WithFields(logger.Fields{
		"endpoint": endpointName,
		"topic":    topic,
	}).Debug("Unsubscribed")
	return nil
}

// Publish delivers payload to every endpoint currently subscribed to the
// topic. Individual send failures (a subscriber closed between
// enumeration and delivery, a full disk) are logged and skipped; zero
// subscribers is a successful publish to nobody.
func (p *PubSub) Publish(endpointName, topic string, payload []byte) error {
	if err := p.ensureTopic(topic); err != nil {
		return err
	}

	subscribers, err := p.Subscribers(topic)
	if err != nil {
		return err
	}

	delivered := 0
	for _, subscriber := range subscribers {
		if err := p.eps.Send(endpointName, subscriber, payload, topic); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"topic":      topic,
				"subscriber": subscriber,
			}).Warn("Fan-out delivery failed")
			continue
		}
		delivered++
	}

	log.WithFields(logger.Fields{
		"topic":       topic,
		"subscribers": len(subscribers),
		"delivered":   delivered,
	}).Debug("Published")
	return nil
}

// Subscribers returns the endpoint names currently linked under the
// topic, in directory order.
func (p *PubSub) Subscribers(topic string) ([]string, error) {
	entries, err := os.ReadDir(p.cfg.TopicDir(topic))
	if err != nil {
		return nil, oops.Wrapf(err, "list topic %s", topic)
	}

	var subscribers []string
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			// Topics containing "/" nest directories inside the pub/sub
			// root; those are other topics' parents, not subscribers.
			continue
		}
		target, err := os.Readlink(filepath.Join(p.cfg.TopicDir(topic), entry.Name()))
		if err != nil {
			log.WithError(err).WithField("entry", entry.Name()).Warn("Unreadable subscriber link")
			continue
		}
		subscribers = append(subscribers, target)
	}
	return subscribers, nil
}

// ensureTopic creates the topic directory on first use. Topics are never
// garbage-collected.
func (p *PubSub) ensureTopic(topic string) error {
	dir := p.cfg.TopicDir(topic)
	if util.CheckFileExists(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return oops.Wrapf(err, "create topic %s", topic)
	}
	// Same sharing discipline as endpoint directories.
	for d := dir; d != p.cfg.PubSubRoot && d != "/" && d != "."; d = filepath.Dir(d) {
		if err := os.Chmod(d, 0o770|os.ModeSetgid); err != nil {
			log.WithError(err).WithField("dir", d).Warn("Failed to set group permissions on topic")
		}
	}
	log.WithField("topic", topic).Debug("Created topic")
	return nil
}
