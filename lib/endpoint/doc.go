// Package endpoint manages the named mailboxes of the IPC namespace:
// persistent directories holding a delivery queue, an outgoing
// subscription set and an owner record. Endpoints survive process
// restarts and rendezvous through the shared filesystem root, so any
// process that can reach the root can exchange signed messages with any
// other.
package endpoint
