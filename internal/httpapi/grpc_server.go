package httpapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"fives.org/internal/obs"
)

const serviceName = "fives-api"

// GRPCHealth publishes readiness through the standard grpc.health.v1
// service, both for the empty service name and for serviceName.
type GRPCHealth struct {
	readiness readinessChecker
	server    *health.Server
	log       logrus.FieldLogger
}

// NewGRPCHealth creates the health wrapper. Status starts as NOT_SERVING
// until the first Refresh.
func NewGRPCHealth(r readinessChecker, log logrus.FieldLogger) *GRPCHealth {
	if r == nil {
		r = ReadyProbe{}
	}
	h := &GRPCHealth{
		readiness: r,
		server:    health.NewServer(),
		log:       obs.OrDefault(log).WithField("component", "grpc"),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Refresh runs the readiness probe once and publishes the result.
func (h *GRPCHealth) Refresh(ctx context.Context) bool {
	if err := h.readiness.Check(ctx); err != nil {
		h.log.WithError(err).Warn("readiness check failed")
		obs.SetReady(false)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	obs.SetReady(true)
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch refreshes every interval until ctx is done, then marks the service
// as shutting down.
func (h *GRPCHealth) Watch(ctx context.Context, interval time.Duration) {
	h.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}

func (h *GRPCHealth) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(serviceName, status)
}
