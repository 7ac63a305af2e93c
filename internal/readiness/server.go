// Package readiness exposes the Initializer's lifecycle as a standard gRPC
// health-check service, so a host service's own gRPC server (or its
// orchestration layer's readiness probe) can refuse traffic until the
// pipeline reaches DONE.
package readiness

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sevenDatabase/bucketinit/internal/bucketsinit"
)

// ServiceName is the health-check service name the Initializer's readiness
// reports under. An empty service name in a gRPC health check means "the
// whole server"; this package reports under both.
const ServiceName = "bucketinit.Initializer"

// Watcher drives a grpc health.Server's serving status from an Initializer's
// lifecycle signals.
type Watcher struct {
	health *health.Server
}

// NewWatcher builds a Watcher reporting NOT_SERVING until the Initializer
// it's attached to (via Watch) reaches DONE.
func NewWatcher() *Watcher {
	h := health.NewServer()
	h.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Watcher{health: h}
}

// Register attaches the underlying grpc_health_v1 service to srv.
func (w *Watcher) Register(srv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(srv, w.health)
}

// Watch subscribes to init's lifecycle signals and updates serving status
// accordingly. It returns once ctx is done or init publishes its terminal
// Done/Error signal; callers that want Watch to keep observing a later
// restart must call it again against a new Initializer.
func (w *Watcher) Watch(ctx context.Context, init *bucketsinit.Initializer) {
	events := init.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Signal {
			case bucketsinit.SignalDone:
				w.setServing(grpc_health_v1.HealthCheckResponse_SERVING)
			case bucketsinit.SignalError:
				slog.Warn("bucket initializer reported an error, readiness stays NOT_SERVING", slog.Any("error", ev.Err))
				w.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
				return
			}
			if ev.Signal == bucketsinit.SignalDone {
				return
			}
		}
	}
}

func (w *Watcher) setServing(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	w.health.SetServingStatus(ServiceName, status)
	w.health.SetServingStatus("", status)
}
