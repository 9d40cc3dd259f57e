package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func jsonEncode(sig Signal) ([]byte, error) {
	return json.Marshal(sig)
}

type dispatcherFixture struct {
	registry   *Registry
	table      *Table
	dispatcher *Dispatcher
	outbounds  map[string]*fakeOutbound
}

func newDispatcherFixture(t *testing.T, conns ...string) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		registry:  NewRegistry(discardLogger(), nil),
		table:     NewTable(),
		outbounds: make(map[string]*fakeOutbound),
	}
	f.dispatcher = NewDispatcher(f.registry, f.table, jsonEncode, discardLogger(), nil)
	for _, id := range conns {
		out := &fakeOutbound{}
		f.outbounds[id] = out
		require.NoError(t, f.registry.Register(id, out))
	}
	return f
}

func TestDispatcher_InvalidSignal(t *testing.T) {
	tests := []struct {
		name                        string
		group, signalType, payload string
	}{
		{"empty group", "", "offer", "sdp"},
		{"blank group", "  ", "offer", "sdp"},
		{"empty type", "room1", "", "sdp"},
		{"blank type", "room1", "\t", "sdp"},
		{"empty payload", "room1", "offer", ""},
		{"blank payload", "room1", "offer", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, "x", "y")
			f.table.Join("x", "room1")
			f.table.Join("y", "room1")

			err := f.dispatcher.SendSignal("x", tt.group, "alice", tt.signalType, tt.payload)
			require.ErrorIs(t, err, ErrInvalidSignal)
			require.Empty(t, f.outbounds["y"].received(), "no broadcast on validation failure")
		})
	}
}

func TestDispatcher_NotAMember(t *testing.T) {
	f := newDispatcherFixture(t, "x", "y", "z")
	f.table.Join("x", "room1")
	f.table.Join("y", "room1")

	err := f.dispatcher.SendSignal("z", "room1", "zoe", "offer", "sdp-blob")
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Empty(t, f.outbounds["x"].received())
	require.Empty(t, f.outbounds["y"].received())
}

func TestDispatcher_FanOutExcludesSender(t *testing.T) {
	f := newDispatcherFixture(t, "x", "y", "z", "outsider")
	f.table.Join("x", "room1")
	f.table.Join("y", "room1")
	f.table.Join("z", "room1")
	f.table.Join("outsider", "room2")

	require.NoError(t, f.dispatcher.SendSignal("x", "room1", "alice", "offer", "sdp-blob"))

	want := Signal{Type: "offer", Data: "sdp-blob", From: "alice"}
	for _, id := range []string{"y", "z"} {
		frames := f.outbounds[id].received()
		require.Len(t, frames, 1, "conn %s", id)
		var got Signal
		require.NoError(t, json.Unmarshal([]byte(frames[0]), &got))
		require.Equal(t, want, got)
	}
	require.Empty(t, f.outbounds["x"].received(), "sender must not receive its own signal")
	require.Empty(t, f.outbounds["outsider"].received(), "other groups must not receive the signal")
}

func TestDispatcher_RecipientGoneMidFanOut(t *testing.T) {
	f := newDispatcherFixture(t, "x", "y")
	f.table.Join("x", "room1")
	f.table.Join("y", "room1")

	// y's transport vanished but its membership has not been purged yet.
	f.registry.Unregister("y")

	require.NoError(t, f.dispatcher.SendSignal("x", "room1", "alice", "candidate", "cand-blob"))
}

func TestDispatcher_RelayVerbatim(t *testing.T) {
	f := newDispatcherFixture(t, "a", "b", "c")
	for _, id := range []string{"a", "b", "c"} {
		f.table.Join(id, "global")
	}

	require.NoError(t, f.dispatcher.Relay("a", "global", []byte("hello")))

	require.Equal(t, []string{"hello"}, f.outbounds["b"].received())
	require.Equal(t, []string{"hello"}, f.outbounds["c"].received())
	require.Empty(t, f.outbounds["a"].received())
}

func TestDispatcher_RelayRequiresMembership(t *testing.T) {
	f := newDispatcherFixture(t, "a", "b")
	f.table.Join("b", "global")

	err := f.dispatcher.Relay("a", "global", []byte("hello"))
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Empty(t, f.outbounds["b"].received())
}
