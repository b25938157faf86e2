package coordstore

import (
	"context"
	"path"
	"strings"
	"sync"
)

// memNode is an entry in the shared in-memory tree backing MemStore.
type memNode struct {
	data      []byte
	version   int64
	ephemeral bool
	owner     int64 // session id that created this ephemeral node, if any
}

// MemStore is a shared, in-process coordination store used by every
// MemClient connected to it. It implements the same versioned-node,
// CAS, ephemeral-node, and one-shot-watch semantics a real coord-store
// provides, which lets the rest of this module's tests run without a
// live etcd/ZooKeeper cluster.
type MemStore struct {
	mu       sync.Mutex
	nodes    map[string]*memNode
	sessions map[int64]bool // live sessions; false once expired
	nextSess int64

	existsW   map[string][]chan Event
	dataW     map[string][]chan Event
	childrenW map[string][]chan Event
}

// NewMemStore creates an empty shared store.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:     make(map[string]*memNode),
		sessions:  make(map[int64]bool),
		existsW:   make(map[string][]chan Event),
		dataW:     make(map[string][]chan Event),
		childrenW: make(map[string][]chan Event),
	}
}

// Connect creates a new client session against this store.
func (s *MemStore) Connect() *MemClient {
	s.mu.Lock()
	s.nextSess++
	id := s.nextSess
	s.sessions[id] = true
	s.mu.Unlock()
	return &MemClient{store: s, session: id}
}

// ExpireSession simulates session loss for a connected client: its
// ephemeral nodes are removed and EventSessionExpired is delivered on
// every outstanding watch.
func (s *MemStore) ExpireSession(session int64) {
	s.mu.Lock()
	s.sessions[session] = false
	var toDelete []string
	for p, n := range s.nodes {
		if n.ephemeral && n.owner == session {
			toDelete = append(toDelete, p)
		}
	}
	for _, p := range toDelete {
		delete(s.nodes, p)
		s.fireLocked(eventsForDelete(p)...)
	}
	var all []chan Event
	for _, chans := range s.existsW {
		all = append(all, chans...)
	}
	for _, chans := range s.dataW {
		all = append(all, chans...)
	}
	for _, chans := range s.childrenW {
		all = append(all, chans...)
	}
	s.existsW = make(map[string][]chan Event)
	s.dataW = make(map[string][]chan Event)
	s.childrenW = make(map[string][]chan Event)
	s.mu.Unlock()

	for _, ch := range all {
		ch <- Event{Type: EventSessionExpired}
		close(ch)
	}
}

func eventsForDelete(p string) []pendingFire {
	return []pendingFire{{path: p, typ: EventDeleted}, {path: parentOf(p), typ: EventChildrenChanged}}
}

type pendingFire struct {
	path string
	typ  EventType
	node Node
}

// fireLocked must be called with s.mu held; it drains and notifies the
// matching watcher lists, leaving them empty (one-shot).
func (s *MemStore) fireLocked(fires ...pendingFire) {
	for _, f := range fires {
		ev := Event{Type: f.typ, Path: f.path, Node: f.node}
		switch f.typ {
		case EventCreated, EventDeleted:
			for _, ch := range s.existsW[f.path] {
				ch <- ev
				close(ch)
			}
			delete(s.existsW, f.path)
			if f.typ == EventDeleted {
				for _, ch := range s.dataW[f.path] {
					ch <- ev
					close(ch)
				}
				delete(s.dataW, f.path)
			}
		case EventDataChanged:
			for _, ch := range s.dataW[f.path] {
				ch <- ev
				close(ch)
			}
			delete(s.dataW, f.path)
		case EventChildrenChanged:
			for _, ch := range s.childrenW[f.path] {
				ch <- ev
				close(ch)
			}
			delete(s.childrenW, f.path)
		}
	}
}

func parentOf(p string) string {
	d := path.Dir(p)
	if d == "." {
		return "/"
	}
	return d
}

// MemClient is a Client backed by a MemStore, scoped to one session.
type MemClient struct {
	store   *MemStore
	session int64
}

var _ Client = (*MemClient)(nil)

func (c *MemClient) SessionID() int64 { return c.session }

func (c *MemClient) Close() error {
	c.store.ExpireSession(c.session)
	return nil
}

func (c *MemClient) liveLocked() bool {
	return c.store.sessions[c.session]
}

func (c *MemClient) Get(_ context.Context, p string) (Node, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.liveLocked() {
		return Node{}, ErrSessionExpired
	}
	n, ok := c.store.nodes[p]
	if !ok {
		return Node{}, ErrNotFound
	}
	return Node{Path: p, Data: append([]byte(nil), n.data...), Version: n.version}, nil
}

func (c *MemClient) Exists(_ context.Context, p string) (bool, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.liveLocked() {
		return false, ErrSessionExpired
	}
	_, ok := c.store.nodes[p]
	return ok, nil
}

func (c *MemClient) Create(_ context.Context, p string, data []byte, ephemeral bool) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.liveLocked() {
		return ErrSessionExpired
	}
	if _, ok := c.store.nodes[p]; ok {
		return ErrExists
	}
	c.store.nodes[p] = &memNode{data: append([]byte(nil), data...), version: 1, ephemeral: ephemeral, owner: c.session}
	c.store.fireLocked(
		pendingFire{path: p, typ: EventCreated, node: Node{Path: p, Data: data, Version: 1}},
		pendingFire{path: parentOf(p), typ: EventChildrenChanged},
	)
	return nil
}

func (c *MemClient) SetData(_ context.Context, p string, data []byte, expectedVersion int64) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.liveLocked() {
		return ErrSessionExpired
	}
	n, ok := c.store.nodes[p]
	if !ok {
		if expectedVersion == ForceCAS {
			c.store.nodes[p] = &memNode{data: append([]byte(nil), data...), version: 1}
			c.store.fireLocked(
				pendingFire{path: p, typ: EventCreated, node: Node{Path: p, Data: data, Version: 1}},
				pendingFire{path: parentOf(p), typ: EventChildrenChanged},
			)
			return nil
		}
		return ErrNotFound
	}
	if expectedVersion != ForceCAS && n.version != expectedVersion {
		return ErrBadVersion
	}
	n.data = append([]byte(nil), data...)
	n.version++
	c.store.fireLocked(pendingFire{path: p, typ: EventDataChanged, node: Node{Path: p, Data: n.data, Version: n.version}})
	return nil
}

func (c *MemClient) Delete(_ context.Context, p string, expectedVersion int64) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.liveLocked() {
		return ErrSessionExpired
	}
	n, ok := c.store.nodes[p]
	if !ok {
		return ErrNotFound
	}
	if expectedVersion != ForceCAS && n.version != expectedVersion {
		return ErrBadVersion
	}
	delete(c.store.nodes, p)
	c.store.fireLocked(eventsForDelete(p)...)
	return nil
}

func (c *MemClient) List(_ context.Context, p string) ([]string, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.liveLocked() {
		return nil, ErrSessionExpired
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	seen := make(map[string]bool)
	var out []string
	for candidate := range c.store.nodes {
		if !strings.HasPrefix(candidate, prefix) {
			continue
		}
		rest := strings.TrimPrefix(candidate, prefix)
		name := strings.SplitN(rest, "/", 2)[0]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func (c *MemClient) WatchExists(_ context.Context, p string) (<-chan Event, error) {
	return c.registerLocked(p, &c.store.existsW)
}

func (c *MemClient) WatchData(_ context.Context, p string) (<-chan Event, error) {
	return c.registerLocked(p, &c.store.dataW)
}

func (c *MemClient) WatchChildren(_ context.Context, p string) (<-chan Event, error) {
	return c.registerLocked(p, &c.store.childrenW)
}

func (c *MemClient) registerLocked(p string, table *map[string][]chan Event) (<-chan Event, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.liveLocked() {
		return nil, ErrSessionExpired
	}
	ch := make(chan Event, 1)
	(*table)[p] = append((*table)[p], ch)
	return ch, nil
}
