// Package constants holds the sizing and timing constants shared by every
// escrowd package: the sparse-sequence trie shape, wire-format limits, and
// the bootstrap/accept timing the daemon and client stub agree on.
package constants

import "time"

const (
	// RootShift is the width, in bits, of the sparse sequence's root index.
	RootShift = 10
	// LeafShift is the width, in bits, of the sparse sequence's leaf index.
	LeafShift = 10
	// RootSize is the number of cells in the sparse sequence's root array.
	RootSize = 1 << RootShift
	// LeafSize is the number of slots in one sparse sequence leaf.
	LeafSize = 1 << LeafShift
	// MaxIndex is the exclusive upper bound on a tag index.
	MaxIndex = 1 << (RootShift + LeafShift)
)

const (
	// MaxPayload is the largest payload, in bytes, a slot may carry.
	MaxPayload = 1 << 15
	// MaxReply is the largest human-readable REP description, in bytes,
	// including the trailing NUL.
	MaxReply = 1 << 10
)

const (
	// DefaultTags is the tag count a daemon starts with when the CLI
	// caller does not override it.
	DefaultTags = 32

	// ListenBacklog is a listen backlog size for the rendezvous socket. The
	// daemon does not pass it anywhere: it binds through net.ListenUnix,
	// which applies the system's default backlog.
	ListenBacklog = 16

	// SpawnRetryDelay is the source's fixed one-second sleep between
	// spawning a daemon and retrying the connect. The client stub does not
	// use it: it waits through an fsnotify watch or, when the watcher
	// cannot be set up, a bounded exponential-backoff poll.
	SpawnRetryDelay = 1 * time.Second

	// BootstrapTimeout bounds how long the client stub waits for a freshly
	// spawned daemon's rendezvous socket to appear; when it elapses, Open
	// fails with a startup error.
	BootstrapTimeout = 5 * time.Second
)
