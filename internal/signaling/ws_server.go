package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferivonus/signal-relay/internal/auth"
	"github.com/ferivonus/signal-relay/internal/config"
	"github.com/ferivonus/signal-relay/internal/metrics"
	"github.com/ferivonus/signal-relay/internal/ratelimit"
	"github.com/ferivonus/signal-relay/internal/relay"
)

const writeWait = 1 * time.Second

// BroadcastGroup is the implicit group every connection joins in broadcast
// mode. The name never appears on the wire; broadcast clients have no group
// concept.
const BroadcastGroup = "broadcast"

// Caller-visible error strings, preserved verbatim for compatibility with
// existing web clients.
const (
	msgJoinInvalid        = "Group name or username cannot be empty."
	msgJoinUnauthorized   = "Unauthorized to join this group."
	msgSignalInvalid      = "Signal data is invalid. Group name, signal type, or signal data cannot be empty."
	msgSignalUnauthorized = "You are not authorized to send signals to this group."
)

// Server owns the GET /ws endpoint. In hub mode it speaks the JSON protocol
// from messages.go; in broadcast mode it forwards text frames verbatim to
// every other connection.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	hub      *relay.Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
}

func NewServer(cfg config.Config, hub *relay.Hub, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			// Origin policy is a deployment concern handled in front of the
			// relay; the protocol itself accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*wsConn]struct{}),
	}, nil
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
}

// Close tears down every live connection. Safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if s.verifier != nil {
		cred, err := auth.CredentialFromQuery(s.cfg.AuthMode, r.URL.Query())
		if err == nil {
			err = s.verifier.Verify(cred)
		}
		if err != nil {
			s.metrics.Inc(metrics.EventAuthFailure)
			s.log.Warn("connection rejected", "remote_addr", r.RemoteAddr, "err", err)
			writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
			_ = conn.Close()
			return
		}
	}

	wc := &wsConn{
		srv:  s,
		conn: conn,
		send: make(chan []byte, s.cfg.SendQueueSize),
		done: make(chan struct{}),
	}

	if !s.track(wc) {
		writeClose(conn, websocket.CloseGoingAway, "server shutting down")
		_ = conn.Close()
		return
	}

	connID, err := s.hub.Connect(wc)
	if err != nil {
		s.untrack(wc)
		writeClose(conn, websocket.CloseInternalServerErr, "failed to register connection")
		_ = conn.Close()
		return
	}

	if s.cfg.Mode == config.ModeBroadcast {
		// Every broadcast connection is a member of the one implicit group.
		// The gate is AllowAll in this mode; the username is never surfaced.
		if err := s.hub.Join(connID, BroadcastGroup, connID); err != nil {
			s.log.Error("broadcast join failed", "conn_id", connID, "err", err)
			s.disconnect(wc, connID, err)
			return
		}
	}

	go wc.writePump()
	wc.readLoop(connID)
}

func (s *Server) track(wc *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[wc] = struct{}{}
	return true
}

func (s *Server) untrack(wc *wsConn) {
	s.mu.Lock()
	delete(s.conns, wc)
	s.mu.Unlock()
}

func (s *Server) disconnect(wc *wsConn, connID string, cause error) {
	wc.close()
	s.untrack(wc)
	s.hub.Disconnect(connID, cause)
}

// wsConn is one live WebSocket connection. It implements relay.Outbound by
// queueing frames for its writer goroutine; a full queue fails the delivery
// rather than stalling the sender's fan-out.
type wsConn struct {
	srv  *Server
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func (wc *wsConn) Deliver(payload []byte) error {
	select {
	case <-wc.done:
		return relay.ErrSlowConsumer
	default:
	}
	select {
	case wc.send <- payload:
		return nil
	default:
		return relay.ErrSlowConsumer
	}
}

func (wc *wsConn) close() {
	wc.closeOnce.Do(func() {
		close(wc.done)
		_ = wc.conn.Close()
	})
}

func (wc *wsConn) readLoop(connID string) {
	cfg := wc.srv.cfg
	wc.conn.SetReadLimit(cfg.MaxMessageBytes)
	if cfg.WSIdleTimeout > 0 {
		_ = wc.conn.SetReadDeadline(time.Now().Add(cfg.WSIdleTimeout))
		wc.conn.SetPongHandler(func(string) error {
			return wc.conn.SetReadDeadline(time.Now().Add(cfg.WSIdleTimeout))
		})
	}

	limiter := ratelimit.NewMessageLimiter(nil, cfg.MaxMessagesPerSecond)

	var cause error
	for {
		msgType, data, err := wc.conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				cause = err
			}
			break
		}
		if cfg.WSIdleTimeout > 0 {
			_ = wc.conn.SetReadDeadline(time.Now().Add(cfg.WSIdleTimeout))
		}
		if !limiter.Allow() {
			wc.srv.metrics.Inc(metrics.EventRateLimited)
			writeClose(wc.conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			cause = errors.New("message rate limit exceeded")
			break
		}

		if cfg.Mode == config.ModeBroadcast {
			if msgType != websocket.TextMessage {
				continue
			}
			if err := wc.srv.hub.Relay(connID, BroadcastGroup, data); err != nil {
				wc.srv.log.Warn("broadcast relay failed", "conn_id", connID, "err", err)
			}
			continue
		}

		if msgType != websocket.TextMessage {
			writeClose(wc.conn, websocket.CloseUnsupportedData, "expected text message")
			cause = errors.New("unsupported message type")
			break
		}
		wc.srv.handleMessage(wc, connID, data)
	}

	wc.srv.disconnect(wc, connID, cause)
}

func (s *Server) handleMessage(wc *wsConn, connID string, data []byte) {
	msg, err := ParseClientMessage(data)
	if err != nil {
		s.reply(wc, connID, ServerMessage{
			Type:    MessageTypeReceiveError,
			Message: "Invalid message: " + err.Error(),
		})
		return
	}

	switch msg.Type {
	case MessageTypeJoinGroup:
		switch err := s.hub.Join(connID, msg.Group, msg.Username); {
		case err == nil:
			s.reply(wc, connID, ServerMessage{Type: MessageTypeJoinGroupSuccess, Group: msg.Group})
		case errors.Is(err, relay.ErrInvalidSignal):
			s.reply(wc, connID, ServerMessage{Type: MessageTypeJoinGroupError, Message: msgJoinInvalid})
		case errors.Is(err, relay.ErrNotAuthorized):
			s.reply(wc, connID, ServerMessage{Type: MessageTypeJoinGroupError, Message: msgJoinUnauthorized})
		default:
			s.reply(wc, connID, ServerMessage{Type: MessageTypeJoinGroupError, Message: "Failed to join group."})
		}

	case MessageTypeLeaveGroup:
		// Leaving a group you are not in is not an error.
		s.hub.Leave(connID, msg.Group)
		s.reply(wc, connID, ServerMessage{Type: MessageTypeLeaveGroupSuccess, Group: msg.Group})

	case MessageTypeSendSignal:
		switch err := s.hub.SendSignal(connID, msg.Group, msg.Username, msg.SignalType, msg.Payload); {
		case err == nil:
			// No acknowledgment beyond success.
		case errors.Is(err, relay.ErrInvalidSignal):
			s.reply(wc, connID, ServerMessage{Type: MessageTypeReceiveError, Message: msgSignalInvalid})
		case errors.Is(err, relay.ErrNotAuthorized):
			s.reply(wc, connID, ServerMessage{Type: MessageTypeReceiveError, Message: msgSignalUnauthorized})
		default:
			s.reply(wc, connID, ServerMessage{Type: MessageTypeReceiveError, Message: "Failed to relay signal."})
		}
	}
}

// reply sends an event to the requesting connection only.
func (s *Server) reply(wc *wsConn, connID string, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("encode reply", "conn_id", connID, "err", err)
		return
	}
	if err := wc.Deliver(data); err != nil {
		s.metrics.Inc(metrics.EventDeliveryDropped)
		s.log.Warn("reply dropped", "conn_id", connID, "err", err)
	}
}

func (wc *wsConn) writePump() {
	cfg := wc.srv.cfg

	var pingC <-chan time.Time
	if cfg.WSPingInterval > 0 {
		ticker := time.NewTicker(cfg.WSPingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case payload := <-wc.send:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				wc.close()
				return
			}
		case <-pingC:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				wc.close()
				return
			}
		case <-wc.done:
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
