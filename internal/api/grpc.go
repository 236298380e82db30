package api

import (
	"context"

	"google.golang.org/grpc"
	healthgrpc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "stockvault.LiveDaemon"

// HealthService wraps the standard gRPC health server and mirrors its state
// for the HTTP /health endpoint.
type HealthService struct {
	server *healthgrpc.Server
}

// NewHealthService creates a health service reporting SERVING.
func NewHealthService() *HealthService {
	h := &HealthService{server: healthgrpc.NewServer()}
	h.server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return h
}

// Register registers the health service on a gRPC server.
func (h *HealthService) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, h.server)
}

// SetServing flips the daemon's serving status.
func (h *HealthService) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(ServiceName, status)
}

// Serving reports the current status of ServiceName.
func (h *HealthService) Serving() bool {
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (h *HealthService) Shutdown() {
	h.server.Shutdown()
}
