// Package grpcapi serves the gRPC health service used by orchestrators and
// load balancers. Serving status follows the readiness check.
package grpcapi

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"meeting-protocol-service/internal/observability"
	"meeting-protocol-service/internal/observability/metrics"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "meeting.protocol.JobService"

// Server wraps a gRPC server exposing health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	ready  observability.ReadinessCheck
}

// New builds the server. ready may be nil, in which case the service always
// reports SERVING until shutdown.
func New(m *metrics.Metrics, ready observability.ReadinessCheck) *Server {
	server := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	s := &Server{grpc: server, health: healthServer, ready: ready}
	s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
	return s.grpc.Serve(lis)
}

// MonitorReadiness re-runs the readiness check every interval and updates the
// serving status until ctx is done.
func (s *Server) MonitorReadiness(ctx context.Context, interval time.Duration) {
	if s.ready == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, interval)
		err := s.ready(checkCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil && serving:
			log.Warn().Err(err).Msg("Readiness check failed, reporting NOT_SERVING")
			s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			log.Info().Msg("Readiness restored, reporting SERVING")
			s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
			serving = true
		}
	}
}

// Shutdown reports NOT_SERVING and stops the server, forcing it when ctx
// expires before in-flight calls finish.
func (s *Server) Shutdown(ctx context.Context) {
	log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

func (s *Server) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
