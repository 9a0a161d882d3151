package wire_test

import (
	"strconv"
	"testing"

	"github.com/roasbeef/holon/internal/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genNodeID(t *rapid.T, label string) wire.NodeID {
	name := rapid.StringMatching(`[A-Za-z][A-Za-z0-9_-]{0,12}`).Draw(t, label+"-name")
	port := rapid.IntRange(1, 65535).Draw(t, label+"-port")

	id, err := wire.ParseNodeID(name + "@127.0.0.1:" + strconv.Itoa(port))
	if err != nil {
		t.Fatalf("generated an invalid node id: %v", err)
	}
	return id
}

func genGossipMember(t *rapid.T) wire.GossipMember {
	return wire.GossipMember{
		NodeID:          genNodeID(t, "member"),
		Status:          uint8(rapid.IntRange(1, 3).Draw(t, "status")),
		LastHeartbeatMs: rapid.Int64Range(0, 1<<40).Draw(t, "heartbeat"),
	}
}

// TestGossipEncodeDecodeRoundTrip checks that an arbitrary Gossip delta,
// however many Add/Remove entries it carries, survives an Encode/Decode
// round trip unchanged. The wire codec is the one piece every cluster
// member's view of the world passes through, so corruption here would be
// silent and cumulative rather than loud.
func TestGossipEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := genNodeID(t, "from")

		numAdd := rapid.IntRange(0, 8).Draw(t, "numAdd")
		add := make([]wire.GossipMember, numAdd)
		for i := range add {
			add[i] = genGossipMember(t)
		}

		numRemove := rapid.IntRange(0, 8).Draw(t, "numRemove")
		remove := make([]wire.NodeID, numRemove)
		for i := range remove {
			remove[i] = genNodeID(t, "removed")
		}

		env := wire.Envelope{
			Version:     1,
			From:        from,
			TimestampMs: rapid.Int64Range(0, 1<<40).Draw(t, "ts"),
			Payload: wire.Payload{
				Kind:   wire.KindGossip,
				Gossip: &wire.Gossip{Add: add, Remove: remove},
			},
		}

		data, err := wire.Encode(env)
		require.NoError(t, err)

		got, err := wire.Decode(data)
		require.NoError(t, err)

		require.Equal(t, env.Version, got.Version)
		require.Equal(t, env.From, got.From)
		require.Equal(t, env.TimestampMs, got.TimestampMs)
		require.Equal(t, wire.KindGossip, got.Payload.Kind)
		require.NotNil(t, got.Payload.Gossip)
		require.ElementsMatch(t, env.Payload.Gossip.Add, got.Payload.Gossip.Add)
		require.ElementsMatch(t, env.Payload.Gossip.Remove, got.Payload.Gossip.Remove)
	})
}

// TestSignVerifyAgreesOnlyForTheSignedFields checks that Verify accepts a
// signature iff every field it covers matches what was signed: flipping
// any one of payload, secret, version, from, or timestamp must invalidate
// it, and an untouched copy must still verify.
func TestSignVerifyAgreesOnlyForTheSignedFields(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "payload")
		secret := rapid.SliceOfN(rapid.Byte(), 1, 32).Draw(t, "secret")
		version := uint8(rapid.IntRange(0, 255).Draw(t, "version"))
		from := genNodeID(t, "signer")
		ts := rapid.Int64Range(0, 1<<40).Draw(t, "ts")

		sig := wire.Sign(payload, secret, version, from, ts)
		require.True(t, wire.Verify(payload, secret, version, from, ts, sig))

		tamperedPayload := append([]byte{}, payload...)
		tamperedPayload = append(tamperedPayload, 0xff)
		require.False(t, wire.Verify(tamperedPayload, secret, version, from, ts, sig))

		tamperedSecret := append([]byte{}, secret...)
		tamperedSecret = append(tamperedSecret, 0xff)
		require.False(t, wire.Verify(payload, tamperedSecret, version, from, ts, sig))

		require.False(t, wire.Verify(payload, secret, version^0xff, from, ts, sig))
		require.False(t, wire.Verify(payload, secret, version, from+"x", ts, sig))
		require.False(t, wire.Verify(payload, secret, version, from, ts+1, sig))
	})
}
