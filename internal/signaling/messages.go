package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ferivonus/signal-relay/internal/relay"
)

// MessageType names are part of the wire contract with existing web clients
// and must not change.
type MessageType string

const (
	MessageTypeJoinGroup  MessageType = "JoinGroup"
	MessageTypeLeaveGroup MessageType = "LeaveGroup"
	MessageTypeSendSignal MessageType = "SendSignal"

	MessageTypeJoinGroupSuccess  MessageType = "JoinGroupSuccess"
	MessageTypeJoinGroupError    MessageType = "JoinGroupError"
	MessageTypeLeaveGroupSuccess MessageType = "LeaveGroupSuccess"
	MessageTypeReceiveError      MessageType = "ReceiveError"
	MessageTypeSignalReceived    MessageType = "SignalReceived"
)

// ClientMessage is a request frame from a client. Field presence is validated
// per type; field contents (e.g. non-empty group names) are the relay core's
// concern so that violations produce the protocol's named error replies.
type ClientMessage struct {
	Type       MessageType `json:"type"`
	Group      string      `json:"group,omitempty"`
	Username   string      `json:"username,omitempty"`
	SignalType string      `json:"signalType,omitempty"`
	Payload    string      `json:"payload,omitempty"`
}

// ServerMessage is an event frame sent to a client.
type ServerMessage struct {
	Type    MessageType   `json:"type"`
	Group   string        `json:"group,omitempty"`
	Message string        `json:"message,omitempty"`
	Signal  *relay.Signal `json:"signal,omitempty"`
}

// ParseClientMessage decodes a request frame strictly: unknown fields,
// trailing data, and fields that don't belong to the message type are all
// rejected.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg ClientMessage
	if err := dec.Decode(&msg); err != nil {
		return ClientMessage{}, err
	}
	if err := msg.validate(); err != nil {
		return ClientMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ClientMessage{}, fmt.Errorf("unexpected trailing data")
	}
	return msg, nil
}

func (m ClientMessage) validate() error {
	switch m.Type {
	case MessageTypeJoinGroup:
		if m.SignalType != "" || m.Payload != "" {
			return fmt.Errorf("JoinGroup message has unexpected fields")
		}
	case MessageTypeLeaveGroup:
		if m.Username != "" || m.SignalType != "" || m.Payload != "" {
			return fmt.Errorf("LeaveGroup message has unexpected fields")
		}
	case MessageTypeSendSignal:
		// All fields are in play; contents are validated by the dispatcher.
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// EncodeSignalReceived builds the fan-out frame for a relayed signal.
func EncodeSignalReceived(sig relay.Signal) ([]byte, error) {
	return json.Marshal(ServerMessage{
		Type:   MessageTypeSignalReceived,
		Signal: &sig,
	})
}
