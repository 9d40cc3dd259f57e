package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// SessionController is the subset of *webrtc.PeerConnection that Peer drives.
type SessionController interface {
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
}

// Peer enforces the ordering contract between remote descriptions and remote
// ICE candidates: candidates that arrive before the remote description is set
// are queued and flushed in arrival order right after SetRemoteDescription;
// candidates after that point apply directly. Signaling is fire-and-forget,
// so arrival order across the relay is the only ordering there is.
type Peer struct {
	pc SessionController

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func NewPeer(pc SessionController) *Peer {
	return &Peer{pc: pc}
}

// NewPeerConnection builds a PeerConnection whose internal logging is routed
// at the given level.
func NewPeerConnection(cfg webrtc.Configuration, level slog.Level) (*webrtc.PeerConnection, error) {
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = pionLogLevel(level)

	se := webrtc.SettingEngine{LoggerFactory: lf}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	return api.NewPeerConnection(cfg)
}

// SetRemoteDescription applies the remote description and then flushes any
// queued candidates in the order they arrived. The flush always drains the
// whole queue: a candidate that fails to apply does not block the ones behind
// it, since ICE tolerates individual candidate loss. Flush failures are
// collected and returned after the description has been applied.
func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.remoteSet = true

	pending := p.pending
	p.pending = nil

	var errs []error
	for _, candidate := range pending {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			errs = append(errs, fmt.Errorf("apply queued candidate: %w", err))
		}
	}
	return errors.Join(errs...)
}

// AddICECandidate applies the candidate, or queues it when the remote
// description has not been set yet.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.remoteSet {
		p.pending = append(p.pending, candidate)
		return nil
	}
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// Pending reports how many candidates are queued awaiting the remote
// description.
func (p *Peer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func pionLogLevel(level slog.Level) logging.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return logging.LogLevelDebug
	case level <= slog.LevelInfo:
		return logging.LogLevelInfo
	case level <= slog.LevelWarn:
		return logging.LogLevelWarn
	default:
		return logging.LogLevelError
	}
}
