package config

import (
	"path/filepath"
	"strings"
)

const (
	// DefaultIPCRoot is the shared rendezvous namespace all processes on
	// the host agree on.
	DefaultIPCRoot = "/var/lib/toolbox/ipc"

	// PubSubDirName is the topic namespace directory under the IPC root.
	PubSubDirName = "pubsub"

	// PrivPrefix is the reserved prefix for anonymous endpoints.
	PrivPrefix = "priv"

	// QueueDirName and SubscriptionsDirName are the fixed entries of every
	// endpoint directory; their joint presence marks a directory as an
	// endpoint.
	QueueDirName         = "queue"
	SubscriptionsDirName = "subscriptions"

	// OwnerFileName records the user that opened the endpoint.
	OwnerFileName = "owner"
)

// IPCConfig is the process-wide IPC configuration: where the endpoint
// namespace and topic namespace live. It is threaded through the endpoint
// and pubsub constructors and never mutated after creation.
type IPCConfig struct {
	// Root is the endpoint namespace root.
	Root string
	// PubSubRoot is the topic namespace root, by default <Root>/pubsub.
	PubSubRoot string
	// CheckClockSkew enables the one-shot NTP probe during InitConfig.
	CheckClockSkew bool
}

// IPCConfigProperties is the global configuration, kept for callers that
// do not thread an IPCConfig explicitly.
var IPCConfigProperties = DefaultIPCConfig()

func DefaultIPCConfig() *IPCConfig {
	return &IPCConfig{
		Root:       DefaultIPCRoot,
		PubSubRoot: filepath.Join(DefaultIPCRoot, PubSubDirName),
	}
}

// EndpointDir resolves an endpoint name (which may contain "/") inside
// the namespace root.
func (c *IPCConfig) EndpointDir(name string) string {
	return filepath.Join(c.Root, filepath.FromSlash(name))
}

func (c *IPCConfig) QueueDir(name string) string {
	return filepath.Join(c.EndpointDir(name), QueueDirName)
}

func (c *IPCConfig) SubscriptionsDir(name string) string {
	return filepath.Join(c.EndpointDir(name), SubscriptionsDirName)
}

func (c *IPCConfig) OwnerFile(name string) string {
	return filepath.Join(c.EndpointDir(name), OwnerFileName)
}

// TopicDir resolves a topic name (which may contain "/") inside the
// pub/sub root.
func (c *IPCConfig) TopicDir(topic string) string {
	return filepath.Join(c.PubSubRoot, filepath.FromSlash(topic))
}

// SubscriptionLink is the endpoint-side half of a subscription: a symlink
// at <endpoint>/subscriptions/<topic> pointing at the topic directory.
func (c *IPCConfig) SubscriptionLink(name, topic string) string {
	return filepath.Join(c.SubscriptionsDir(name), filepath.FromSlash(topic))
}

// SubscriberLink is the topic-side half: a symlink at
// <pubsub>/<topic>/<flat-name> whose target is the endpoint name.
func (c *IPCConfig) SubscriberLink(topic, endpointName string) string {
	return filepath.Join(c.TopicDir(topic), FlatName(endpointName))
}

// FlatName collapses an endpoint name to a single path component so it
// can serve as a filename inside a topic directory.
func FlatName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}
