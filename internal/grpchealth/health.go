// Package grpchealth publishes fleet health through the standard
// grpc.health.v1.Health service so load balancers and orchestrators can check
// it without speaking the REST API.
//
// The empty service name reports the process itself and is always SERVING.
// Each engine is published under its own name ("mongodb", "postgresql", ...)
// and is SERVING while the engine has fresh data and no critical cluster.
package grpchealth

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// Server wraps a gRPC server exposing the health service.
type Server struct {
	hs   *health.Server
	grpc *grpc.Server
}

// New returns a Server. Every engine starts NOT_SERVING until the first
// snapshot says otherwise.
func New(opts ...grpc.ServerOption) *Server {
	s := &Server{hs: health.NewServer(), grpc: grpc.NewServer(opts...)}
	healthpb.RegisterHealthServer(s.grpc, s.hs)
	s.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, e := range types.Engines() {
		s.hs.SetServingStatus(string(e), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Status derives the serving status of one engine snapshot.
func Status(es types.EngineSnapshot) healthpb.HealthCheckResponse_ServingStatus {
	if es.Stale || es.Degraded || es.ClusterCounts.Critical > 0 {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Update sets the status of every engine from snap. Engines without sources
// are NOT_SERVING.
func (s *Server) Update(snap types.Snapshot) {
	for _, e := range types.Engines() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if es, ok := snap.Engine(e); ok {
			st = Status(es)
		}
		s.hs.SetServingStatus(string(e), st)
	}
}

// Watch applies every snapshot received on updates until ctx is cancelled
// or updates is closed.
func (s *Server) Watch(ctx context.Context, updates <-chan types.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			s.Update(snap)
		}
	}
}

// Serve accepts connections on lis until ctx is cancelled, then marks every
// service NOT_SERVING and stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.hs.Shutdown()
		s.grpc.GracefulStop()
	}()
	slog.Info("grpchealth: listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
