package relay

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ferivonus/signal-relay/internal/metrics"
)

// Hub drives the per-connection lifecycle: register on connect, join/leave
// while connected, delegate signals to the dispatcher, and purge everything
// on disconnect.
//
// The transport calls Hub methods from each connection's own read loop, and
// calls Disconnect only after that loop has exited, so operations for one
// connection are naturally serialized. All shared state below is safe for
// concurrent use across connections regardless.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	registry   *Registry
	table      *Table
	authorizer Authorizer
	dispatcher *Dispatcher
}

type HubConfig struct {
	// Authorizer is the join admission policy. Nil means NonEmptyAuthorizer.
	Authorizer Authorizer

	// Encode builds the fan-out frame for a Signal. Required for SendSignal;
	// Relay passes frames through verbatim without it.
	Encode EncodeFunc

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = NonEmptyAuthorizer{}
	}

	registry := NewRegistry(logger, cfg.Metrics)
	table := NewTable()
	return &Hub{
		log:        logger,
		metrics:    cfg.Metrics,
		registry:   registry,
		table:      table,
		authorizer: authorizer,
		dispatcher: NewDispatcher(registry, table, cfg.Encode, logger, cfg.Metrics),
	}
}

// Connect registers a new connection and returns its assigned id.
func (h *Hub) Connect(out Outbound) (string, error) {
	id := uuid.NewString()
	if err := h.registry.Register(id, out); err != nil {
		return "", err
	}
	h.log.Info("client connected", "conn_id", id)
	return id, nil
}

// Join validates the request, runs the authorization gate, and records the
// membership. Joining a group the connection already belongs to succeeds.
func (h *Hub) Join(connID, group, username string) error {
	if strings.TrimSpace(group) == "" || strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: group name and username must be non-empty", ErrInvalidSignal)
	}
	// Not atomic with the table update below. Safe while Join and Disconnect
	// for one connection stay serialized on its read loop; revisit before
	// giving the Hub out-of-band callers.
	if !h.registry.Has(connID) {
		return ErrUnknownConnection
	}

	if err := h.authorizer.Authorize(username, group); err != nil {
		h.metrics.Inc(metrics.EventJoinRejected)
		h.log.Warn("unauthorized join attempt", "conn_id", connID, "group", group, "username", username)
		return fmt.Errorf("%w: join rejected by policy", ErrNotAuthorized)
	}

	h.table.Join(connID, group)
	h.log.Info("client joined group", "conn_id", connID, "group", group, "username", username)
	return nil
}

// Leave removes the membership if present. Leaving a group the connection
// never joined is not an error.
func (h *Hub) Leave(connID, group string) {
	h.table.Leave(connID, group)
	h.log.Info("client left group", "conn_id", connID, "group", group)
}

// SendSignal relays a signal to the sender's group. See Dispatcher.SendSignal.
func (h *Hub) SendSignal(connID, group, username, signalType, payload string) error {
	return h.dispatcher.SendSignal(connID, group, username, signalType, payload)
}

// Relay forwards a raw frame to the other members of group.
func (h *Hub) Relay(connID, group string, frame []byte) error {
	return h.dispatcher.Relay(connID, group, frame)
}

// GroupsOf returns a snapshot of the connection's current groups.
func (h *Hub) GroupsOf(connID string) []string {
	return h.table.GroupsOf(connID)
}

// Connections returns the number of currently registered connections.
func (h *Hub) Connections() int {
	return h.registry.Len()
}

// MembersOf returns a snapshot of the group's current members.
func (h *Hub) MembersOf(group string) []string {
	return h.table.MembersOf(group, "")
}

// Disconnect purges all of the connection's memberships and unregisters it.
// Cleanup is unconditional and idempotent; cause is logged only. Membership
// is purged before the registry entry is removed so no membership ever
// outlives its connection.
func (h *Hub) Disconnect(connID string, cause error) {
	groups := h.table.PurgeConnection(connID)
	for _, group := range groups {
		h.log.Info("client removed from group on disconnect", "conn_id", connID, "group", group)
	}
	h.registry.Unregister(connID)

	if cause != nil {
		h.log.Info("client disconnected", "conn_id", connID, "cause", cause)
	} else {
		h.log.Info("client disconnected", "conn_id", connID)
	}
}
