package relay

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ferivonus/signal-relay/internal/metrics"
)

// Outbound is the delivery handle for one connection. Deliver must not block
// indefinitely; implementations queue the payload and report failure when the
// connection is gone or its queue is full.
type Outbound interface {
	Deliver(payload []byte) error
}

// ErrSlowConsumer is returned by Outbound implementations whose send queue is
// full. The registry treats it like any other delivery failure: drop and log.
var ErrSlowConsumer = errors.New("send queue full")

// Registry tracks live connections and exclusively owns their Outbound
// handles. Other components refer to connections by id only.
type Registry struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	conns map[string]Outbound
}

func NewRegistry(logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		log:     logger,
		metrics: m,
		conns:   make(map[string]Outbound),
	}
}

func (r *Registry) Register(id string, out Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[id]; exists {
		return ErrDuplicateConnection
	}
	r.conns[id] = out
	r.metrics.ConnectionOpened()
	return nil
}

// Unregister removes a connection. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, existed := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if existed {
		r.metrics.ConnectionClosed()
	}
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers payload to the connection if it is still registered.
// Best-effort: a missing connection or a failed delivery is logged and
// counted, never surfaced to the caller.
func (r *Registry) Send(id string, payload []byte) {
	r.mu.RLock()
	out, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		r.metrics.Inc(metrics.EventDeliveryDropped)
		r.log.Debug("delivery dropped, connection gone", "conn_id", id)
		return
	}
	if err := out.Deliver(payload); err != nil {
		r.metrics.Inc(metrics.EventDeliveryDropped)
		r.log.Warn("delivery dropped", "conn_id", id, "err", err)
	}
}
