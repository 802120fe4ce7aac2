// Package protocol defines the JSON envelopes two peers exchange over their
// data channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/peerplay/internal/rules"
)

// MessageType names the payload carried by an Envelope.
type MessageType string

const (
	TypeMove          MessageType = "move"
	TypeFullStateSync MessageType = "full-state-sync"
	TypeSyncRequest   MessageType = "sync-request"
	TypeChat          MessageType = "chat"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
	TypeLeave         MessageType = "leave"
)

var knownTypes = map[MessageType]bool{
	TypeMove:          true,
	TypeFullStateSync: true,
	TypeSyncRequest:   true,
	TypeChat:          true,
	TypePing:          true,
	TypePong:          true,
	TypeLeave:         true,
}

var (
	// ErrMalformed covers undecodable frames, unknown types and missing payloads.
	ErrMalformed = errors.New("malformed message")
	// ErrOutOfSequence is returned when a move's number does not follow the local log.
	ErrOutOfSequence = errors.New("move out of sequence")
	// ErrWrongType is returned by the typed accessors.
	ErrWrongType = errors.New("unexpected message type")
)

// Envelope is the single frame format on the wire: {"type": ..., "payload": {...}}.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MovePayload carries one move. MoveNumber is 1-based and equals the length of
// the sender's log after applying the move.
type MovePayload struct {
	X          int          `json:"x"`
	Y          int          `json:"y"`
	Player     rules.Player `json:"player"`
	MoveNumber int          `json:"moveNumber"`
	Dest       *rules.Point `json:"dest,omitempty"`
	Vertical   bool         `json:"vertical,omitempty"`
}

// Position returns the board position the move names.
func (m MovePayload) Position() rules.Position {
	return rules.Position{X: m.X, Y: m.Y, Dest: m.Dest, Vertical: m.Vertical}
}

// MoveFrom builds a payload from an applied move.
func MoveFrom(mv rules.Move) MovePayload {
	return MovePayload{
		X:          mv.X,
		Y:          mv.Y,
		Player:     mv.Player,
		MoveNumber: mv.Seq,
		Dest:       mv.Dest,
		Vertical:   mv.Vertical,
	}
}

// SyncPayload is the host's authoritative snapshot. History is what the
// receiver replays; State is informational.
type SyncPayload struct {
	Game     rules.GameType   `json:"game"`
	History  []rules.Move     `json:"history"`
	State    *rules.GameState `json:"state,omitempty"`
	YouAre   rules.Player     `json:"youAre"`
	HostName string           `json:"hostName"`
}

type SyncRequestPayload struct {
	Name string `json:"name"`
}

type ChatPayload struct {
	From string    `json:"from"`
	Text string    `json:"text"`
	TS   time.Time `json:"ts"`
}

type PingPayload struct {
	Nonce string    `json:"nonce"`
	TS    time.Time `json:"ts"`
}

type LeavePayload struct {
	Reason string `json:"reason,omitempty"`
}

// New wraps payload in an envelope of the given type.
func New(t MessageType, payload any) (Envelope, error) {
	if !knownTypes[t] {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, t)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// MustNew is New for payload types that always marshal.
func MustNew(t MessageType, payload any) Envelope {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Encode serialises an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	if !knownTypes[env.Type] {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("{}")
	}
	return json.Marshal(env)
}

// Decode parses a frame. Anything that is not a known, well-formed envelope
// yields ErrMalformed; the caller drops it and keeps the link open.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !knownTypes[env.Type] {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return Envelope{}, fmt.Errorf("%w: %s without payload", ErrMalformed, env.Type)
	}
	return env, nil
}

func decodeAs[T any](env Envelope, want MessageType) (T, error) {
	var out T
	if env.Type != want {
		return out, fmt.Errorf("%w: have %s, want %s", ErrWrongType, env.Type, want)
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: %s payload: %v", ErrMalformed, want, err)
	}
	return out, nil
}

// Move decodes a move payload, rejecting non-positive move numbers.
func (e Envelope) Move() (MovePayload, error) {
	m, err := decodeAs[MovePayload](e, TypeMove)
	if err != nil {
		return m, err
	}
	if m.MoveNumber < 1 || !m.Player.Valid() {
		return m, fmt.Errorf("%w: move %d by %q", ErrMalformed, m.MoveNumber, m.Player)
	}
	return m, nil
}

func (e Envelope) Sync() (SyncPayload, error) {
	s, err := decodeAs[SyncPayload](e, TypeFullStateSync)
	if err != nil {
		return s, err
	}
	if !s.Game.Valid() {
		return s, fmt.Errorf("%w: sync for unknown game %q", ErrMalformed, s.Game)
	}
	return s, nil
}

func (e Envelope) SyncRequest() (SyncRequestPayload, error) {
	return decodeAs[SyncRequestPayload](e, TypeSyncRequest)
}

func (e Envelope) Chat() (ChatPayload, error) { return decodeAs[ChatPayload](e, TypeChat) }

// Ping decodes both ping and pong frames, which share a payload.
func (e Envelope) Ping() (PingPayload, error) {
	if e.Type == TypePong {
		return decodeAs[PingPayload](e, TypePong)
	}
	return decodeAs[PingPayload](e, TypePing)
}

func (e Envelope) Leave() (LeavePayload, error) { return decodeAs[LeavePayload](e, TypeLeave) }

// CheckSequence accepts a move only when it is the next entry of a log that
// currently holds localLen moves.
func CheckSequence(localLen, moveNumber int) error {
	if moveNumber != localLen+1 {
		return fmt.Errorf("%w: got %d, expected %d", ErrOutOfSequence, moveNumber, localLen+1)
	}
	return nil
}
