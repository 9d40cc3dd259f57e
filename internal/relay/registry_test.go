package relay

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOutbound struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (f *fakeOutbound) Deliver(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.frames = append(f.frames, buf)
	return nil
}

func (f *fakeOutbound) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, b := range f.frames {
		out[i] = string(b)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry(discardLogger(), nil)

	require.NoError(t, r.Register("c1", &fakeOutbound{}))
	err := r.Register("c1", &fakeOutbound{})
	require.ErrorIs(t, err, ErrDuplicateConnection)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewRegistry(discardLogger(), nil)

	require.NoError(t, r.Register("c1", &fakeOutbound{}))
	r.Unregister("c1")
	r.Unregister("c1")
	r.Unregister("never-registered")
	require.Equal(t, 0, r.Len())
	require.False(t, r.Has("c1"))
}

func TestRegistry_SendBestEffort(t *testing.T) {
	r := NewRegistry(discardLogger(), nil)

	ok := &fakeOutbound{}
	broken := &fakeOutbound{err: ErrSlowConsumer}
	require.NoError(t, r.Register("ok", ok))
	require.NoError(t, r.Register("broken", broken))

	// None of these panic or error: missing target and failed delivery are
	// silent drops from the caller's perspective.
	r.Send("ok", []byte("hello"))
	r.Send("broken", []byte("hello"))
	r.Send("gone", []byte("hello"))

	require.Equal(t, []string{"hello"}, ok.received())
	require.Empty(t, broken.received())
}

func TestRegistry_SendAfterUnregister(t *testing.T) {
	r := NewRegistry(discardLogger(), nil)

	out := &fakeOutbound{}
	require.NoError(t, r.Register("c1", out))
	r.Unregister("c1")
	r.Send("c1", []byte("late"))

	require.Empty(t, out.received())
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(discardLogger(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.Register(id, &fakeOutbound{}); err != nil && !errors.Is(err, ErrDuplicateConnection) {
				t.Errorf("register %s: %v", id, err)
			}
			r.Send(id, []byte("x"))
			r.Unregister(id)
		}(string(rune('a' + i%26)))
	}
	wg.Wait()
}
