// Package client is a Go client for the signaling relay. It speaks the hub
// protocol over a WebSocket and, via Peer, drives a pion PeerConnection with
// the candidate ordering the protocol requires.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Signal is a relayed signaling payload from another group member.
type Signal struct {
	Type string `json:"type"`
	Data string `json:"data"`
	From string `json:"from"`
}

// clientMessage and serverMessage mirror the relay's wire frames.
type clientMessage struct {
	Type       string `json:"type"`
	Group      string `json:"group,omitempty"`
	Username   string `json:"username,omitempty"`
	SignalType string `json:"signalType,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

type serverMessage struct {
	Type    string  `json:"type"`
	Group   string  `json:"group,omitempty"`
	Message string  `json:"message,omitempty"`
	Signal  *Signal `json:"signal,omitempty"`
}

// Handlers receive server events. All callbacks run on the client's single
// read goroutine, so they must not block; a nil callback drops the event.
type Handlers struct {
	// OnJoined fires on JoinGroupSuccess.
	OnJoined func(group string)
	// OnJoinError fires on JoinGroupError with the server's message.
	OnJoinError func(message string)
	// OnLeft fires on LeaveGroupSuccess.
	OnLeft func(group string)
	// OnSignal fires on SignalReceived.
	OnSignal func(sig Signal)
	// OnError fires on ReceiveError with the server's message.
	OnError func(message string)
	// OnDisconnect fires once when the read loop exits. err is nil after a
	// clean close.
	OnDisconnect func(err error)
}

type Options struct {
	Handlers Handlers
	Logger   *slog.Logger

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client is a connection to the relay. Safe for concurrent use.
type Client struct {
	conn     *websocket.Conn
	log      *slog.Logger
	handlers Handlers

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay at url (a ws:// or wss:// URL ending in /ws)
// and starts the event read loop.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c := &Client{
		conn:     conn,
		log:      logger,
		handlers: opts.Handlers,
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Join requests membership in group under username.
func (c *Client) Join(group, username string) error {
	return c.write(clientMessage{Type: "JoinGroup", Group: group, Username: username})
}

// Leave drops membership in group.
func (c *Client) Leave(group string) error {
	return c.write(clientMessage{Type: "LeaveGroup", Group: group})
}

// SendSignal relays a signal to the other members of group.
func (c *Client) SendSignal(group, username, signalType, payload string) error {
	return c.write(clientMessage{
		Type:       "SendSignal",
		Group:      group,
		Username:   username,
		SignalType: signalType,
		Payload:    payload,
	})
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection has been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) write(msg clientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) readLoop() {
	var cause error
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
					// Local close; the read error is expected.
				default:
					cause = err
				}
			}
			break
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("malformed server frame", "err", err)
			continue
		}
		c.dispatch(msg)
	}

	_ = c.Close()
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(cause)
	}
}

func (c *Client) dispatch(msg serverMessage) {
	switch msg.Type {
	case "JoinGroupSuccess":
		if c.handlers.OnJoined != nil {
			c.handlers.OnJoined(msg.Group)
		}
	case "JoinGroupError":
		if c.handlers.OnJoinError != nil {
			c.handlers.OnJoinError(msg.Message)
		}
	case "LeaveGroupSuccess":
		if c.handlers.OnLeft != nil {
			c.handlers.OnLeft(msg.Group)
		}
	case "SignalReceived":
		if msg.Signal == nil {
			c.log.Warn("SignalReceived frame without signal body")
			return
		}
		if c.handlers.OnSignal != nil {
			c.handlers.OnSignal(*msg.Signal)
		}
	case "ReceiveError":
		if c.handlers.OnError != nil {
			c.handlers.OnError(msg.Message)
		}
	default:
		c.log.Warn("unknown server event", "type", msg.Type)
	}
}
