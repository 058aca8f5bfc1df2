package call

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Registry maps provider call identifiers to live sessions. Sessions are
// inserted on call start and removed on terminal state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      *slog.Logger

	meter metric.Meter
	gauge metric.Int64ObservableGauge
}

func NewRegistry(log *slog.Logger) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		log:      log.With(slog.String("component", "session-registry")),
		meter:    otel.Meter("github.com/voxdial/voxdial-core/runtime"),
	}
	r.initMetrics()
	return r
}

func (r *Registry) initMetrics() {
	gauge, err := r.meter.Int64ObservableGauge("voxdial.sessions.active",
		metric.WithDescription("Number of live call sessions"))
	if err != nil {
		r.log.Warn("failed to register session gauge", slog.String("error", err.Error()))
		return
	}
	r.gauge = gauge
	_, err = r.meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		r.mu.RLock()
		count := len(r.sessions)
		r.mu.RUnlock()
		observer.ObserveInt64(r.gauge, int64(count))
		return nil
	}, r.gauge)
	if err != nil {
		r.log.Warn("failed to register metric callback", slog.String("error", err.Error()))
	}
}

func (r *Registry) Insert(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.CallSID] = s
}

func (r *Registry) Lookup(callSID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callSID]
	return s, ok
}

func (r *Registry) Remove(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callSID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
