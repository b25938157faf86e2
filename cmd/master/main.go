package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regioncore/internal/assignment"
	"regioncore/internal/catalog"
	"regioncore/internal/config"
	"regioncore/internal/dispatcher"
	"regioncore/internal/metrics"
	"regioncore/internal/rpcapi"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

func main() {
	configPath := flag.String("config", "configs/master.example.yaml", "path to master config")
	host := flag.String("host", "", "this Master's advertised host (only logged at startup)")
	flag.Parse()

	cfg, err := config.LoadMasterConfig(*configPath)
	if err != nil {
		log.Fatalf("master: failed to load config: %v", err)
	}

	coord, err := connectCoordStore(cfg.CoordStore)
	if err != nil {
		log.Fatalf("master: failed to connect to coord-store: %v", err)
	}
	defer coord.Close()

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("master: failed to open catalog: %v", err)
	}
	defer cat.Close()

	rpcTimeout := 10 * time.Second
	rpcClient := rpcapi.NewClient(rpcTimeout)
	defer rpcClient.Close()

	mgr := assignment.New(coord, cat, rpcClient, cfg.RootPath, cfg.AssignmentTimeouts())

	queueDepth := cfg.Dispatcher.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	workers := cfg.Dispatcher.Workers
	if workers <= 0 {
		workers = 8
	}
	disp := dispatcher.New(mgr, queueDepth, workers)
	disp.Start()
	defer disp.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	balanceTick := cfg.BalanceTick
	if balanceTick <= 0 {
		balanceTick = time.Minute
	}
	go dispatcher.Ticker(ctx, disp, dispatcher.BalanceTick, balanceTick)
	go dispatcher.Ticker(ctx, disp, dispatcher.TimeoutTick, 5*time.Second)

	if cfg.Metrics.Address != "" {
		collector := metrics.NewAssignmentCollector(nil, cfg.Metrics.Namespace)
		if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil {
			log.Printf("master: failed to start metrics server: %v", err)
		}
		go reportDiagnostics(ctx, mgr, collector)
	}

	if *host != "" {
		log.Printf("master: starting, advertised host override %s", *host)
	}
	if err := runBootstrap(ctx, mgr, cat); err != nil {
		log.Fatalf("master: bootstrap failed: %v", err)
	}

	log.Printf("master: ready, root=%s", cfg.RootPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("master: shutting down")
}

// runBootstrap brings the cluster to a known state. On a fresh start it
// waits for at least one live server, assigns -ROOT- and .META., and
// bulk-assigns every user region recorded in the catalog. On a non-fresh
// start (a failover, not a cold start) it instead runs the Manager's
// Failover pass over /unassigned directly and returns its result.
func runBootstrap(ctx context.Context, mgr *assignment.Manager, cat *catalog.Catalog) error {
	fresh, err := mgr.FreshStart(ctx)
	if err != nil {
		return err
	}
	if !fresh {
		log.Println("master: resuming from existing cluster state")
		return mgr.Failover(ctx)
	}

	live, err := mgr.WaitForServers(ctx, 1, 2*time.Minute)
	if err != nil {
		return err
	}

	now := region.ID(time.Now().UnixMilli())
	rootInfo := region.Info{Table: catalog.RootTable, ID: now}
	metaInfo := region.Info{Table: catalog.MetaTable, ID: now + 1}
	if err := mgr.BootstrapSystemTables(ctx, rootInfo, metaInfo, live); err != nil {
		return err
	}

	return mgr.BulkAssign(ctx, cat, live)
}

func reportDiagnostics(ctx context.Context, mgr *assignment.Manager, collector *metrics.AssignmentCollector) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d := mgr.Snapshot()
			collector.Observe(metrics.Sample{
				RegionsInTransition: d.RegionsInTransition,
				RegionsOnline:       d.RegionsOnline,
				LiveServers:         d.LiveServers,
				TablesEnabling:      d.TablesEnabling,
				TablesDisabling:     d.TablesDisabling,
				IsActiveMaster:      true,
			})
		}
	}
}

func connectCoordStore(cfg config.CoordStoreConfig) (coordstore.Client, error) {
	switch cfg.Backend {
	case "", "mem":
		return coordstore.NewMemStore().Connect(), nil
	case "etcd":
		dialTimeout := cfg.DialTimeout
		if dialTimeout <= 0 {
			dialTimeout = 5 * time.Second
		}
		return coordstore.NewEtcdClient(cfg.Endpoints, dialTimeout, 10*time.Second)
	default:
		log.Fatalf("master: unknown coord-store backend %q", cfg.Backend)
		return nil, nil
	}
}
