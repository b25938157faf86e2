// Package coordstore is the thin capability layer over the strongly
// consistent coordination store: versioned reads, CAS writes,
// ephemeral session-bound nodes, and one-shot watches. It is modelled
// on a ZooKeeper-like hierarchical namespace; the production
// implementation in etcd.go backs it with etcd, and mem.go provides an
// in-process fake with the same semantics for tests.
package coordstore

import (
	"context"
	"errors"
)

// Node is a single coord-store entry: its payload and its version, which
// increases on every successful write.
type Node struct {
	Path    string
	Data    []byte
	Version int64
}

// Event is delivered at most once per watch registration.
type Event struct {
	Type EventType
	Path string
	Node Node
}

// EventType distinguishes the kinds of events a watch can deliver.
type EventType int

const (
	EventCreated EventType = iota
	EventDataChanged
	EventChildrenChanged
	EventDeleted
	// EventSessionExpired is delivered on all outstanding watches when the
	// client's session is lost; no further events follow it.
	EventSessionExpired
)

var (
	// ErrNotFound is returned when an operation addresses a missing path.
	ErrNotFound = errors.New("coordstore: node not found")
	// ErrExists is returned by Create when the path is already present.
	ErrExists = errors.New("coordstore: node already exists")
	// ErrBadVersion is returned when a CAS operation's expected version does
	// not match the node's current version.
	ErrBadVersion = errors.New("coordstore: version mismatch")
	// ErrSessionExpired is surfaced on any operation performed after the
	// client's session has been lost. Callers must abort and, once
	// reconnected, re-register watches — cached reads from before the loss
	// must be discarded.
	ErrSessionExpired = errors.New("coordstore: session expired")
	// ErrUnavailable indicates the coordination store could not be reached;
	// callers should retry with backoff.
	ErrUnavailable = errors.New("coordstore: unavailable")
)

// Client is the capability surface every component in this module is
// written against. Implementations must never let callers observe a read
// that predates a watch event they have already delivered.
type Client interface {
	// Get returns a path's data and version, or ErrNotFound.
	Get(ctx context.Context, path string) (Node, error)
	// Exists reports whether a path is present, without fetching data.
	Exists(ctx context.Context, path string) (bool, error)
	// Create makes a new node. Ephemeral nodes are deleted automatically
	// when this client's session ends. Returns ErrExists if the path is
	// already present.
	Create(ctx context.Context, path string, data []byte, ephemeral bool) error
	// SetData performs a compare-and-set write: it succeeds only if the
	// node's current version equals expectedVersion.
	SetData(ctx context.Context, path string, data []byte, expectedVersion int64) error
	// Delete removes a node if its version matches expectedVersion.
	Delete(ctx context.Context, path string, expectedVersion int64) error
	// List returns the immediate child names of path.
	List(ctx context.Context, path string) ([]string, error)

	// WatchExists delivers exactly one event the next time path's existence
	// changes (created, or deleted if it currently exists).
	WatchExists(ctx context.Context, path string) (<-chan Event, error)
	// WatchData delivers exactly one event the next time path's data
	// changes or the node is deleted.
	WatchData(ctx context.Context, path string) (<-chan Event, error)
	// WatchChildren delivers exactly one event the next time path gains or
	// loses a child.
	WatchChildren(ctx context.Context, path string) (<-chan Event, error)

	// SessionID identifies this client's current session; it changes after
	// a reconnect following SessionExpired.
	SessionID() int64
	// Close releases the client and, for the production implementation,
	// its coordination-store session (deleting its ephemeral nodes).
	Close() error
}

// ForceCAS is the sentinel expected version meaning "write regardless of
// the node's current version or absence", used by the Master's unilateral
// force-to-OFFLINE transitions. Named distinctly from a legitimate version
// number so a caller can never pass it by accident.
const ForceCAS int64 = -1
