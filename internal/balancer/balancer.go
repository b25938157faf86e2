// Package balancer implements the cluster-balancing policy: a pure
// function from the current region distribution to a list of moves.
// It never touches the coord-store, the catalog, or any in-memory
// assignment state — the Assignment Manager decides, region by
// region, whether and when to enact what this package proposes.
package balancer

import (
	"sort"

	"golang.org/x/exp/slices"

	"regioncore/pkg/region"
)

// Move is one proposed relocation: take regionName away from Source and
// place it on Destination.
type Move struct {
	RegionName  string
	Source      region.ServerName
	Destination region.ServerName
}

// LocalityHint reports, for a candidate destination, whether that server
// already hosts a replica of the region's underlying data — used only to
// break ties between otherwise-equal destinations.
type LocalityHint func(regionName string, destination region.ServerName) bool

// serverLoad is the balancer's working view of one live server: its
// current region set, kept sorted so move selection is deterministic.
type serverLoad struct {
	server  region.ServerName
	regions []string
}

// Balance computes the mean-count plan described for the load balancer:
// move regions off servers above the ceiling onto servers at or below the
// floor, until every server's count is within one of the mean.
//
// live is the full set of servers to balance across (servers with zero
// regions are included so new servers receive work); regionsByServer
// gives each live server's currently-open region names. locality may be
// nil, in which case the locality tie-break is skipped.
func Balance(live []region.ServerName, regionsByServer map[region.ServerName][]string, locality LocalityHint) []Move {
	if len(live) == 0 {
		return nil
	}

	loads := make([]*serverLoad, 0, len(live))
	total := 0
	for _, s := range live {
		names := append([]string(nil), regionsByServer[s]...)
		sort.Strings(names)
		loads = append(loads, &serverLoad{server: s, regions: names})
		total += len(names)
	}
	slices.SortFunc(loads, func(a, b *serverLoad) bool { return a.server.String() < b.server.String() })

	mean := float64(total) / float64(len(loads))
	floor := int(mean)
	ceil := floor
	if mean != float64(floor) {
		ceil = floor + 1
	}

	var moves []Move
	for {
		source := mostLoaded(loads)
		dest := leastLoaded(loads)
		if source == nil || dest == nil {
			break
		}
		if len(source.regions) <= ceil || len(dest.regions) > floor {
			break
		}
		if source == dest {
			break
		}

		regionName := pickRegionToMove(source, dest.server, locality)
		moves = append(moves, Move{RegionName: regionName, Source: source.server, Destination: dest.server})

		source.regions = removeName(source.regions, regionName)
		dest.regions = insertSorted(dest.regions, regionName)
	}
	return moves
}

// mostLoaded returns the server with the largest region count, breaking
// ties lexicographically by server name for determinism.
func mostLoaded(loads []*serverLoad) *serverLoad {
	var best *serverLoad
	for _, l := range loads {
		if best == nil || len(l.regions) > len(best.regions) ||
			(len(l.regions) == len(best.regions) && l.server.String() < best.server.String()) {
			best = l
		}
	}
	return best
}

// leastLoaded returns the server with the smallest region count, same
// tie-break as mostLoaded.
func leastLoaded(loads []*serverLoad) *serverLoad {
	var best *serverLoad
	for _, l := range loads {
		if best == nil || len(l.regions) < len(best.regions) ||
			(len(l.regions) == len(best.regions) && l.server.String() < best.server.String()) {
			best = l
		}
	}
	return best
}

// pickRegionToMove chooses which of source's regions to relocate to dest,
// applying the tie-break order: locality hint first, then lexicographic
// region name. Standard-deviation reduction is identical for every region
// on the same source/dest pair (moving any one of them changes the two
// counts the same way), so it never discriminates within a single pick
// and is fully expressed by always moving between the current
// most-loaded and least-loaded pair.
func pickRegionToMove(source *serverLoad, dest region.ServerName, locality LocalityHint) string {
	if locality != nil {
		for _, name := range source.regions {
			if locality(name, dest) {
				return name
			}
		}
	}
	return source.regions[0]
}

func removeName(names []string, target string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}

func insertSorted(names []string, target string) []string {
	i := sort.SearchStrings(names, target)
	out := make([]string, len(names)+1)
	copy(out, names[:i])
	out[i] = target
	copy(out[i+1:], names[i:])
	return out
}
