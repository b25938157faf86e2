package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regioncore/pkg/region"
)

func srv(host string, port int) region.ServerName {
	return region.ServerName{Host: host, Port: port, StartCode: 1}
}

func TestBalanceEvensOutLoad(t *testing.T) {
	s1, s2, s3 := srv("a", 1), srv("b", 1), srv("c", 1)
	live := []region.ServerName{s1, s2, s3}
	regions := map[region.ServerName][]string{
		s1: {"r1", "r2", "r3", "r4", "r5", "r6"},
		s2: {},
		s3: {},
	}

	moves := Balance(live, regions, nil)
	require.NotEmpty(t, moves)

	counts := map[region.ServerName]int{s1: len(regions[s1]), s2: 0, s3: 0}
	for _, m := range moves {
		assert.Equal(t, s1, m.Source)
		counts[m.Source]--
		counts[m.Destination]++
	}
	for _, s := range live {
		assert.LessOrEqual(t, counts[s], 2)
		assert.GreaterOrEqual(t, counts[s], 2)
	}
}

func TestBalanceNoopWhenAlreadyEven(t *testing.T) {
	s1, s2 := srv("a", 1), srv("b", 1)
	live := []region.ServerName{s1, s2}
	regions := map[region.ServerName][]string{
		s1: {"r1", "r2"},
		s2: {"r3", "r4"},
	}
	assert.Empty(t, Balance(live, regions, nil))
}

func TestBalancePrefersLocalityHint(t *testing.T) {
	s1, s2 := srv("a", 1), srv("b", 1)
	live := []region.ServerName{s1, s2}
	regions := map[region.ServerName][]string{
		s1: {"r1", "r2"},
		s2: {},
	}
	locality := func(name string, dest region.ServerName) bool {
		return name == "r2" && dest == s2
	}

	moves := Balance(live, regions, locality)
	require.Len(t, moves, 1)
	assert.Equal(t, "r2", moves[0].RegionName)
}

func TestBalanceHandlesEmptyCluster(t *testing.T) {
	assert.Nil(t, Balance(nil, nil, nil))
}
