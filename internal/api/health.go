// Package api exposes the client's local control surface over gRPC.
package api

import (
	"context"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service names reported through the standard health protocol.
const (
	ServiceConversation = "pchat.Conversation"
	ServiceLive         = "pchat.Live"
)

// HealthService mirrors conversation and live channel state into a gRPC
// health server. The overall ("") service is SERVING while the process runs.
type HealthService struct {
	srv    *health.Server
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthService creates the service with the conversation NOT_SERVING
// and the live channel SERVING.
func NewHealthService(b *bus.Bus, logger *zap.Logger) *HealthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := health.NewServer()
	srv.SetServingStatus(ServiceConversation, healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceLive, healthpb.HealthCheckResponse_SERVING)
	return &HealthService{srv: srv, bus: b, logger: logger}
}

// Server returns the health implementation to register on a grpc.Server.
func (h *HealthService) Server() healthpb.HealthServer {
	return h.srv
}

// Start follows view and live events on the bus.
func (h *HealthService) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	views, unsubViews := h.bus.Subscribe("view.", 64)
	lives, unsubLives := h.bus.Subscribe("live.", 8)

	go func() {
		defer close(h.done)
		defer unsubViews()
		defer unsubLives()
		for {
			select {
			case evt := <-views:
				h.onView(evt)
			case evt := <-lives:
				if evt.Kind == bus.KindLiveDown {
					h.logger.Warn("live channel down", zap.Any("reason", evt.Payload))
					h.srv.SetServingStatus(ServiceLive, healthpb.HealthCheckResponse_NOT_SERVING)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops following events and marks every service NOT_SERVING.
func (h *HealthService) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	h.srv.Shutdown()
}

func (h *HealthService) onView(evt bus.Event) {
	change, ok := evt.Payload.(status.StatusChange)
	if !ok {
		return
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if change.To == status.Active {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(ServiceConversation, st)
}
