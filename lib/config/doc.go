// Package config holds the process-wide IPC configuration: the shared
// namespace roots every process on the host rendezvouses through, and the
// path arithmetic for endpoints, queues, topics and subscription links.
package config
