// Package store defines the durable session store contract shared by the
// relay client and server: token-identified sessions with a bounded TTL, an
// ordered newest-first event list, and a FIFO queue of unacknowledged
// interaction answers. Implementations live in the inmem and sqlite
// subpackages.
package store
