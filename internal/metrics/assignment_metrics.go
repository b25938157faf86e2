// Package metrics exposes assignment-core diagnostics as Prometheus
// metrics, adapted from the cluster collector pattern: a struct of
// promauto-registered gauges plus an Observe call that cmd/master's
// diagnostics goroutine invokes on a timer.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sample is a point-in-time snapshot of assignment state, computed by
// the caller (typically from planstore.Store and the Manager's table
// map) and handed to Observe.
type Sample struct {
	RegionsInTransition int
	RegionsOnline       int
	LiveServers         int
	TablesEnabling      int
	TablesDisabling     int
	PendingBalanceMoves int
	IsActiveMaster      bool
}

// AssignmentCollector exposes the Master's assignment state as gauges.
type AssignmentCollector struct {
	regionsInTransition prometheus.Gauge
	regionsOnline       prometheus.Gauge
	liveServers         prometheus.Gauge
	tablesEnabling      prometheus.Gauge
	tablesDisabling     prometheus.Gauge
	pendingBalanceMoves prometheus.Gauge
	isActiveMaster      prometheus.Gauge
	openRPCTotal        prometheus.Counter
	closeRPCTotal       prometheus.Counter
	forcedReassignTotal prometheus.Counter
}

// NewAssignmentCollector creates a collector registered on reg (the
// default registry if nil).
func NewAssignmentCollector(reg prometheus.Registerer, namespace string) *AssignmentCollector {
	if namespace == "" {
		namespace = "regioncore"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	builder := promauto.With(reg)
	return &AssignmentCollector{
		regionsInTransition: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regions_in_transition",
			Help:      "Number of regions currently mid-transition (OFFLINE/OPENING/CLOSING).",
		}),
		regionsOnline: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regions_online",
			Help:      "Number of regions believed OPENED across all RegionServers.",
		}),
		liveServers: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_region_servers",
			Help:      "Number of RegionServers with a live ephemeral node.",
		}),
		tablesEnabling: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables_enabling",
			Help:      "Number of tables currently in the ENABLING state.",
		}),
		tablesDisabling: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables_disabling",
			Help:      "Number of tables currently in the DISABLING state.",
		}),
		pendingBalanceMoves: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_balance_moves",
			Help:      "Moves proposed by the most recent balancer pass not yet observed complete.",
		}),
		isActiveMaster: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "is_active_master",
			Help:      "Whether this process currently holds the cluster's master lock (1=yes, 0=no).",
		}),
		openRPCTotal: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "open_region_rpc_total",
			Help:      "Total OpenRegion RPCs issued to RegionServers.",
		}),
		closeRPCTotal: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "close_region_rpc_total",
			Help:      "Total CloseRegion RPCs issued to RegionServers.",
		}),
		forcedReassignTotal: builder.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_reassign_total",
			Help:      "Total forced reassignments triggered by timeouts or server failure.",
		}),
	}
}

// Observe updates every gauge from a fresh sample.
func (c *AssignmentCollector) Observe(s Sample) {
	c.regionsInTransition.Set(float64(s.RegionsInTransition))
	c.regionsOnline.Set(float64(s.RegionsOnline))
	c.liveServers.Set(float64(s.LiveServers))
	c.tablesEnabling.Set(float64(s.TablesEnabling))
	c.tablesDisabling.Set(float64(s.TablesDisabling))
	c.pendingBalanceMoves.Set(float64(s.PendingBalanceMoves))
	if s.IsActiveMaster {
		c.isActiveMaster.Set(1)
	} else {
		c.isActiveMaster.Set(0)
	}
}

// IncOpenRPC, IncCloseRPC and IncForcedReassign bump the per-event
// counters, kept out of Sample since they count individual events rather
// than a periodic snapshot. No code outside this package's tests calls
// them.
func (c *AssignmentCollector) IncOpenRPC()        { c.openRPCTotal.Inc() }
func (c *AssignmentCollector) IncCloseRPC()       { c.closeRPCTotal.Inc() }
func (c *AssignmentCollector) IncForcedReassign() { c.forcedReassignTotal.Inc() }

// StartServer serves Prometheus metrics on addr until ctx is canceled.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("metrics: address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("metrics: server error: %v\n", err)
		}
	}()

	return nil
}
