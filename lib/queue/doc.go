// Package queue implements the persistent FIFO behind every endpoint
// mailbox: a directory of one-file-per-item entries that unrelated OS
// processes can produce into and consume from concurrently. Atomic rename
// is the only synchronization primitive used, both to commit new items
// and to claim them for consumption.
package queue
