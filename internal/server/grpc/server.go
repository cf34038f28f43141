// Package grpcserver provides the gRPC server, its health service and the
// interceptors that establish the caller's identity.
package grpcserver

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server bundles the grpc.Server with its health service.
type Server struct {
	GRPC   *grpc.Server
	Health *health.Server
}

// New builds a gRPC server with the identity interceptor chain and a registered
// health service. Extra options (credentials, limits) are appended.
func New(log *zap.Logger, auth Authenticator, public Public, opts ...grpc.ServerOption) *Server {
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			ScopeUnary(),
			RecoverUnary(log),
			LoggingUnary(log),
			AuthUnary(auth, public),
		),
		grpc.ChainStreamInterceptor(
			ScopeStream(),
			RecoverStream(log),
			AuthStream(auth, public),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return &Server{GRPC: s, Health: hs}
}

// Serving marks every service as serving.
func (s *Server) Serving() { s.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING) }

// Shutdown flips health to NOT_SERVING and stops the server gracefully.
func (s *Server) Shutdown() {
	s.Health.Shutdown()
	s.GRPC.GracefulStop()
}
