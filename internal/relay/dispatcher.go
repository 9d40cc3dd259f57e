package relay

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ferivonus/signal-relay/internal/metrics"
)

// Signal is the fan-out envelope delivered to group members. The field names
// are part of the wire contract with existing web clients.
type Signal struct {
	Type string `json:"type"`
	Data string `json:"data"`
	From string `json:"from"`
}

// EncodeFunc turns a Signal into the frame delivered to recipients. The
// transport layer supplies it so this package stays wire-agnostic.
type EncodeFunc func(Signal) ([]byte, error)

// Dispatcher validates signals and fans them out to all current members of a
// group except the sender.
type Dispatcher struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	registry *Registry
	table    *Table
	encode   EncodeFunc
}

func NewDispatcher(registry *Registry, table *Table, encode EncodeFunc, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		log:      logger,
		metrics:  m,
		registry: registry,
		table:    table,
		encode:   encode,
	}
}

// SendSignal relays an opaque negotiation payload from connID to the other
// members of group.
//
// Membership is the standing authorization: the join already vetted the
// (username, group) pair, so the dispatcher only checks that the sender is
// currently a member. Delivery to each recipient is independent and
// best-effort; a recipient disconnecting mid-fan-out never surfaces to the
// sender.
func (d *Dispatcher) SendSignal(connID, group, username, signalType, payload string) error {
	if strings.TrimSpace(group) == "" || strings.TrimSpace(signalType) == "" || strings.TrimSpace(payload) == "" {
		d.metrics.Inc(metrics.EventInvalidSignal)
		return fmt.Errorf("%w: group, signal type, and payload must be non-empty", ErrInvalidSignal)
	}

	if !d.table.IsMember(connID, group) {
		d.metrics.Inc(metrics.EventSignalRejected)
		return fmt.Errorf("%w: connection is not a member of group %q", ErrNotAuthorized, group)
	}

	frame, err := d.encode(Signal{Type: signalType, Data: payload, From: username})
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}

	n := d.fanOut(connID, group, frame)
	d.metrics.Inc(metrics.EventSignalsRelayed)
	d.log.Info("signal relayed",
		"conn_id", connID,
		"group", group,
		"username", username,
		"signal_type", signalType,
		"recipients", n,
	)
	return nil
}

// Relay forwards a frame verbatim to the other members of group. Used by
// broadcast mode, where frames are not parsed or validated.
func (d *Dispatcher) Relay(connID, group string, frame []byte) error {
	if !d.table.IsMember(connID, group) {
		return fmt.Errorf("%w: connection is not a member of group %q", ErrNotAuthorized, group)
	}
	n := d.fanOut(connID, group, frame)
	d.metrics.Inc(metrics.EventFramesBroadcast)
	d.log.Debug("frame broadcast", "conn_id", connID, "group", group, "recipients", n)
	return nil
}

func (d *Dispatcher) fanOut(sender, group string, frame []byte) int {
	members := d.table.MembersOf(group, sender)
	for _, id := range members {
		d.registry.Send(id, frame)
	}
	return len(members)
}
