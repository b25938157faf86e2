// Package regionserver is the RegionServer side of the assignment
// protocol: the online-regions map, the per-region write lock, the
// handler for Master-issued RPCs, and the reporting side of the
// OFFLINE/OPENING/OPENED/CLOSING/CLOSED coord-store CAS protocol.
package regionserver

import (
	"sort"
	"sync"

	"regioncore/pkg/region"
)

// OnlineRegions is the RegionServer's belief about which regions it is
// currently serving. It satisfies split.OnlineRegions directly: Add and
// Remove are exactly what a split transaction needs to swap a parent for
// its daughters.
type OnlineRegions struct {
	mu      sync.RWMutex
	regions map[string]region.Info
}

func NewOnlineRegions() *OnlineRegions {
	return &OnlineRegions{regions: make(map[string]region.Info)}
}

func (o *OnlineRegions) Add(info region.Info) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.regions[info.EncodedName()] = info
}

func (o *OnlineRegions) Remove(encodedName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.regions, encodedName)
}

func (o *OnlineRegions) Get(encodedName string) (region.Info, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	info, ok := o.regions[encodedName]
	return info, ok
}

// Snapshot returns every currently online region, ordered by encoded
// name, for heartbeat reporting.
func (o *OnlineRegions) Snapshot() []region.Info {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]region.Info, 0, len(o.regions))
	for _, info := range o.regions {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EncodedName() < out[j].EncodedName() })
	return out
}

func (o *OnlineRegions) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.regions)
}
