package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"identity-core/backend/internal/health"
)

// NewGRPCServer returns a gRPC server exposing grpc.health.v1.Health backed by checker,
// instrumented with the otelgrpc stats handler.
func NewGRPCServer(checker *health.Checker, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, checker)
	return s
}

// RegisterServices registers every gRPC service with s.
func RegisterServices(s grpc.ServiceRegistrar, checker *health.Checker) {
	healthpb.RegisterHealthServer(s, checker.GRPCServer())
}
