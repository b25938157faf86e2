// Package planstore holds the Master's in-memory view of regions in
// transition, its placement plans, and the believed contents of each
// live server, all behind a single lock. Every mutation goes through
// this package so the Assignment Manager never has to reason about
// partial updates across the three maps.
package planstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	"regioncore/pkg/region"
)

// Transition is a region's observed coord-store state plus bookkeeping
// timestamps used for timeout detection.
type Transition struct {
	RegionName        string
	State             region.State
	Server             region.ServerName
	StartTimestamp     time.Time
	LastUpdateTimestamp time.Time
}

// btreeItem orders transitions by encoded region name for the ordered
// index AllTransitions iterates.
type btreeItem struct {
	name string
}

func (a btreeItem) Less(than btree.Item) bool {
	return a.name < than.(btreeItem).name
}

// Store is the single manager-wide lock over the in-transition, plan, and
// server-contents maps.
type Store struct {
	mu sync.RWMutex

	transitions map[string]*Transition
	index       *btree.BTree

	plans map[string]region.Plan

	// serverRegions: server -> set of region names believed open there.
	serverRegions map[region.ServerName]map[string]struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		transitions:   make(map[string]*Transition),
		index:         btree.New(32),
		plans:         make(map[string]region.Plan),
		serverRegions: make(map[region.ServerName]map[string]struct{}),
	}
}

// StartTransition records a new in-transition region, or overwrites an
// existing one (used by the Master's force-to-OFFLINE path, which must be
// able to clobber whatever was there).
func (s *Store) StartTransition(name string, state region.State, server region.ServerName, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transitions[name]; !ok {
		s.index.ReplaceOrInsert(btreeItem{name: name})
	}
	s.transitions[name] = &Transition{
		RegionName:          name,
		State:               state,
		Server:              server,
		StartTimestamp:      now,
		LastUpdateTimestamp: now,
	}
}

// UpdateTransition mutates an in-flight transition's state in place,
// returning false if the region was not in transition.
func (s *Store) UpdateTransition(name string, state region.State, server region.ServerName, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transitions[name]
	if !ok {
		return false
	}
	t.State = state
	if !server.IsZero() {
		t.Server = server
	}
	t.LastUpdateTimestamp = now
	return true
}

// Transition returns a copy of the named region's transition record, if any.
func (s *Store) Transition(name string) (Transition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transitions[name]
	if !ok {
		return Transition{}, false
	}
	return *t, true
}

// EndTransition removes a region from regionsInTransition once its coord-
// store node has been deleted (steady state reached, either open or
// disabled-offline).
func (s *Store) EndTransition(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transitions, name)
	s.index.Delete(btreeItem{name: name})
}

// AllTransitions returns a snapshot of every in-transition region, ordered
// by region name.
func (s *Store) AllTransitions() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transition, 0, len(s.transitions))
	s.index.Ascend(func(item btree.Item) bool {
		out = append(out, *s.transitions[item.(btreeItem).name])
		return true
	})
	return out
}

// Expired returns the in-transition regions whose deadline (last update +
// the state's timeout) has passed as of now.
func (s *Store) Expired(now time.Time, timeoutFor func(region.State) time.Duration) []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transition
	for _, t := range s.transitions {
		if now.Sub(t.LastUpdateTimestamp) >= timeoutFor(t.State) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionName < out[j].RegionName })
	return out
}

// SetPlan records the Master's placement intent for a region.
func (s *Store) SetPlan(p region.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.RegionName] = p
}

// Plan returns the recorded plan for a region, if any.
func (s *Store) Plan(name string) (region.Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[name]
	return p, ok
}

// ClearPlan drops a region's recorded plan once acted on.
func (s *Store) ClearPlan(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, name)
}

// AddServerRegion records that a region is now believed open on server.
func (s *Store) AddServerRegion(server region.ServerName, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.serverRegions[server]
	if !ok {
		set = make(map[string]struct{})
		s.serverRegions[server] = set
	}
	set[name] = struct{}{}
}

// RemoveServerRegion forgets that a region is open on server.
func (s *Store) RemoveServerRegion(server region.ServerName, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.serverRegions[server]; ok {
		delete(set, name)
		if len(set) == 0 {
			delete(s.serverRegions, server)
		}
	}
}

// RegionsOnServer returns the region names believed open on server.
func (s *Store) RegionsOnServer(server region.ServerName) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.serverRegions[server]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RemoveServer drops every region association for server (used once all of
// its regions have been reassigned after it dies) and returns what was
// removed.
func (s *Store) RemoveServer(server region.ServerName) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.serverRegions[server]
	delete(s.serverRegions, server)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ServerCounts returns the number of regions believed open on each live
// server, for the balancer.
func (s *Store) ServerCounts(live []region.ServerName) map[region.ServerName]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[region.ServerName]int, len(live))
	for _, srv := range live {
		out[srv] = len(s.serverRegions[srv])
	}
	return out
}

// ServerRegionsSnapshot returns a full copy of the server -> regions map.
func (s *Store) ServerRegionsSnapshot() map[region.ServerName][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[region.ServerName][]string, len(s.serverRegions))
	for srv, set := range s.serverRegions {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		out[srv] = names
	}
	return out
}
