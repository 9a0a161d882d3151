package wire_test

import (
	"testing"

	"github.com/roasbeef/holon/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestParseNodeID(t *testing.T) {
	valid := []string{"alice@127.0.0.1:4001", "node_2@example.com:9000"}
	for _, s := range valid {
		id, err := wire.ParseNodeID(s)
		require.NoError(t, err)
		require.Equal(t, s, id.String())
	}

	invalid := []string{
		"no-at-sign", "@host:1000", "1bad@host:1000", "name@host",
		"name@host:0", "name@host:70000", "name@:1000",
	}
	for _, s := range invalid {
		_, err := wire.ParseNodeID(s)
		require.ErrorIs(t, err, wire.ErrInvalidNodeID)
	}
}

func TestNodeIDNameAndAddress(t *testing.T) {
	id, err := wire.ParseNodeID("alice@127.0.0.1:4001")
	require.NoError(t, err)
	require.Equal(t, "alice", id.Name())
	require.Equal(t, "127.0.0.1:4001", id.Address())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	from, err := wire.ParseNodeID("alice@127.0.0.1:4001")
	require.NoError(t, err)

	env := wire.Envelope{
		Version:     1,
		From:        from,
		TimestampMs: 1234,
		Payload: wire.Payload{
			Kind: wire.KindCall,
			Call: &wire.Call{
				CallID:       "c1",
				TargetHandle: "counter",
				Msg:          []byte{1, 2, 3},
				TimeoutMs:    5000,
				SentAtMs:     1234,
			},
		},
	}

	data, err := wire.Encode(env)
	require.NoError(t, err)

	got, err := wire.Decode(data)
	require.NoError(t, err)
	require.Equal(t, env.Version, got.Version)
	require.Equal(t, env.From, got.From)
	require.Equal(t, env.TimestampMs, got.TimestampMs)
	require.Equal(t, wire.KindCall, got.Payload.Kind)
	require.NotNil(t, got.Payload.Call)
	require.Equal(t, "c1", got.Payload.Call.CallID)
	require.Equal(t, []byte{1, 2, 3}, got.Payload.Call.Msg)
}

func TestEncodeIsCanonicalAndDeterministic(t *testing.T) {
	from, err := wire.ParseNodeID("alice@127.0.0.1:4001")
	require.NoError(t, err)

	env := wire.Envelope{
		Version: 1, From: from, TimestampMs: 99,
		Payload: wire.Payload{Kind: wire.KindHeartbeat, Heartbeat: &wire.Heartbeat{}},
	}

	a, err := wire.Encode(env)
	require.NoError(t, err)
	b, err := wire.Encode(env)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSignAndVerify(t *testing.T) {
	from, err := wire.ParseNodeID("alice@127.0.0.1:4001")
	require.NoError(t, err)

	secret := []byte("cluster-secret")
	payload := []byte("payload-bytes")

	sig := wire.Sign(payload, secret, 1, from, 1000)
	require.True(t, wire.Verify(payload, secret, 1, from, 1000, sig))

	require.False(t, wire.Verify(payload, secret, 1, from, 1001, sig))
	require.False(t, wire.Verify(payload, []byte("wrong-secret"), 1, from, 1000, sig))
	require.False(t, wire.Verify([]byte("tampered"), secret, 1, from, 1000, sig))
}
