// Package rpcserver wraps a gRPC server with the standard gRPC health
// service, adapted from the KV server's grpc wrapper into a small
// reusable shell any process in this module can register services on.
package rpcserver

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps a *grpc.Server with a health endpoint and graceful
// shutdown tied to a context.
type Server struct {
	addr   string
	srv    *grpc.Server
	health *health.Server
}

// New constructs a Server listening on addr once Start is called.
// Register application services on the returned *grpc.Server before
// calling Start.
func New(addr string) *Server {
	s := &Server{
		addr:   addr,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.setServing(false)
	return s
}

// Services exposes the underlying *grpc.Server for service registration.
func (s *Server) Services() *grpc.Server { return s.srv }

// Start begins listening and serving. It returns once the listener is
// bound; serving and shutdown continue in the background until ctx is
// canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.addr == "" {
		return fmt.Errorf("rpcserver: address is empty")
	}
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpcserver: listen on %s: %w", s.addr, err)
	}
	s.setServing(true)
	go func() {
		<-ctx.Done()
		s.setServing(false)
		s.srv.GracefulStop()
	}()
	go func() {
		_ = s.srv.Serve(lis)
	}()
	return nil
}

// Stop gracefully shuts the server down immediately, without waiting for
// ctx to be canceled.
func (s *Server) Stop() {
	s.setServing(false)
	s.srv.GracefulStop()
}

func (s *Server) setServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}
