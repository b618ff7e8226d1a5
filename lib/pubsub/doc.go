// Package pubsub implements topic-based fan-out over the shared
// filesystem namespace. A topic directory holds one symlink per
// subscriber; the subscriber's endpoint holds a mirror link back to the
// topic. Both links are created together and torn down together, so the
// subscription graph stays consistent across crashes, and publishing is
// nothing more than enumerating the topic directory and sending to each
// name found there.
package pubsub
