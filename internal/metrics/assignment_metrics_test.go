package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAssignmentCollectorObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewAssignmentCollector(reg, "regioncore_test")

	collector.Observe(Sample{
		RegionsInTransition: 4,
		RegionsOnline:       120,
		LiveServers:         6,
		TablesEnabling:      1,
		PendingBalanceMoves: 2,
		IsActiveMaster:      true,
	})
	collector.IncOpenRPC()
	collector.IncCloseRPC()
	collector.IncForcedReassign()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics to be registered")
	}
}
