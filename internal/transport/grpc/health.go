package grpcx

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// StorageService is the health service name that follows persistence.
const StorageService = "board.storage"

// Health publishes process liveness ("") and storage health.
type Health struct {
	srv *health.Server
}

func NewHealth() *Health {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(StorageService, healthpb.HealthCheckResponse_SERVING)
	return &Health{srv: srv}
}

// SetStoreHealthy is wired as the synchronizer's health reporter.
func (h *Health) SetStoreHealthy(ok bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus(StorageService, st)
}

// Shutdown переводит все сервисы в NOT_SERVING перед остановкой.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}

// NewServer собирает gRPC-сервер с интерцепторами и health.
func NewServer(h *Health) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(s, h.srv)
	reflection.Register(s)
	return s
}
