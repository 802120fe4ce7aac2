package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMoveRoundTrip(t *testing.T) {
	env, err := New(TypeMove, MovePayload{X: 9, Y: 9, Player: rules.Black, MoveNumber: 1})
	require.NoError(t, err)
	data, err := Encode(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"move","payload":{"x":9,"y":9,"player":"black","moveNumber":1}}`, string(data))

	got, err := Decode(data)
	require.NoError(t, err)
	m, err := got.Move()
	require.NoError(t, err)
	assert.Equal(t, rules.At(9, 9), m.Position())
	assert.Equal(t, 1, m.MoveNumber)
}

func TestCheckersMoveCarriesDestination(t *testing.T) {
	mv := rules.Move{Position: rules.Position{X: 1, Y: 6, Dest: &rules.Point{X: 3, Y: 4}}, Player: rules.Black, Seq: 4}
	data, err := Encode(MustNew(TypeMove, MoveFrom(mv)))
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	m, err := env.Move()
	require.NoError(t, err)
	require.NotNil(t, m.Dest)
	assert.Equal(t, rules.Point{X: 3, Y: 4}, *m.Dest)
	assert.Equal(t, 4, m.MoveNumber)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"type":`},
		{"unknown type", `{"type":"resign","payload":{}}`},
		{"missing payload", `{"type":"move"}`},
		{"null payload", `{"type":"chat","payload":null}`},
		{"array", `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestTypedAccessors(t *testing.T) {
	env := MustNew(TypeChat, ChatPayload{From: "ann", Text: "gg", TS: time.Unix(10, 0).UTC()})
	c, err := env.Chat()
	require.NoError(t, err)
	assert.Equal(t, "gg", c.Text)

	_, err = env.Move()
	assert.ErrorIs(t, err, ErrWrongType)

	bad := Envelope{Type: TypeMove, Payload: json.RawMessage(`{"x":"nine"}`)}
	_, err = bad.Move()
	assert.ErrorIs(t, err, ErrMalformed)

	zero := MustNew(TypeMove, MovePayload{X: 1, Y: 1, Player: rules.Black})
	_, err = zero.Move()
	assert.ErrorIs(t, err, ErrMalformed, "moveNumber must be positive")

	sync := MustNew(TypeFullStateSync, SyncPayload{Game: "tetris"})
	_, err = sync.Sync()
	assert.ErrorIs(t, err, ErrMalformed)

	pong := MustNew(TypePong, PingPayload{Nonce: "n1"})
	p, err := pong.Ping()
	require.NoError(t, err)
	assert.Equal(t, "n1", p.Nonce)
}

func TestSyncPayloadReplays(t *testing.T) {
	e := rules.NewGomoku()
	s, err := rules.Play(e, e.NewState(), rules.At(9, 9), rules.Black)
	require.NoError(t, err)
	s, err = rules.Play(e, s, rules.At(10, 10), rules.White)
	require.NoError(t, err)

	data, err := Encode(MustNew(TypeFullStateSync, SyncPayload{Game: rules.Gomoku, History: s.History, State: s, YouAre: rules.White, HostName: "ann"}))
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	sp, err := env.Sync()
	require.NoError(t, err)

	replayed, err := rules.Replay(rules.MustFor(sp.Game), sp.History)
	require.NoError(t, err)
	assert.True(t, replayed.Equal(s))
	assert.True(t, sp.State.Equal(s))
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := Encode(Envelope{Type: "nope"})
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = New("nope", nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCheckSequence(t *testing.T) {
	assert.NoError(t, CheckSequence(0, 1))
	assert.NoError(t, CheckSequence(7, 8))
	assert.ErrorIs(t, CheckSequence(7, 7), ErrOutOfSequence)
	assert.ErrorIs(t, CheckSequence(7, 10), ErrOutOfSequence)
}

func TestPropertyCheckSequenceAcceptsOnlyNext(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		local := rapid.IntRange(0, 500).Draw(t, "local")
		n := rapid.IntRange(-5, 505).Draw(t, "n")
		err := CheckSequence(local, n)
		if (err == nil) != (n == local+1) {
			t.Fatalf("CheckSequence(%d, %d) = %v", local, n, err)
		}
	})
}
