package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"regioncore/internal/catalog"
	"regioncore/internal/config"
	"regioncore/internal/metrics"
	"regioncore/internal/regionserver"
	"regioncore/internal/rpcapi"
	"regioncore/internal/rpcserver"
	"regioncore/pkg/coordstore"
	"regioncore/pkg/region"
)

func main() {
	configPath := flag.String("config", "configs/regionserver.example.yaml", "path to region server config")
	flag.Parse()

	cfg, err := config.LoadRegionServerConfig(*configPath)
	if err != nil {
		log.Fatalf("regionserver: failed to load config: %v", err)
	}

	coord, err := connectCoordStore(cfg.CoordStore)
	if err != nil {
		log.Fatalf("regionserver: failed to connect to coord-store: %v", err)
	}
	defer coord.Close()

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("regionserver: failed to open catalog: %v", err)
	}
	defer cat.Close()

	self := region.ServerName{Host: cfg.Host, Port: cfg.Port, StartCode: time.Now().UnixNano()}

	srv := regionserver.NewServer(self, coord, cat, cfg.RootPath, cfg.DataDir, cfg.Family)

	previous, err := regionserver.DiscoverRegions(cfg.DataDir)
	if err != nil {
		log.Fatalf("regionserver: failed to scan data dir: %v", err)
	}
	if len(previous) > 0 {
		log.Printf("regionserver: rejoining %d region(s) found on disk", len(previous))
		srv.RejoinFromDisk(previous)
	}

	grpcAddr := cfg.GRPC.Address
	if grpcAddr == "" {
		grpcAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcSrv := rpcserver.New(grpcAddr)
	rpcapi.RegisterRegionAdminServer(rpcSrv.Services(), srv)
	if err := rpcSrv.Start(ctx); err != nil {
		log.Fatalf("regionserver: failed to start: %v", err)
	}
	log.Printf("regionserver: %s serving on %s, hosting %d region(s)", self, grpcAddr, srv.Online().Count())

	if cfg.Metrics.Address != "" {
		if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil {
			log.Printf("regionserver: failed to start metrics server: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("regionserver: shutting down")
	rpcSrv.Stop()
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
		log.Fatalf("regionserver: unknown coord-store backend %q", cfg.Backend)
		return nil, nil
	}
}

