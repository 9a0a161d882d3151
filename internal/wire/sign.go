package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// Sign computes the HMAC-SHA256 over version+from+timestamp+payload using
// the cluster's shared secret, matching spec.md §3's Envelope definition.
// The result is suitable for Envelope.Signature.
func Sign(payload []byte, secret []byte, version uint8, from NodeID, ts int64) []byte {
	mac := hmac.New(sha256.New, secret)

	mac.Write([]byte{version})
	mac.Write([]byte(from))

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	mac.Write(tsBuf[:])

	mac.Write(payload)

	return mac.Sum(nil)
}

// Verify reports whether sig is the valid HMAC-SHA256 for the given
// fields under secret. Comparison is constant-time.
func Verify(payload []byte, secret []byte, version uint8, from NodeID, ts int64, sig []byte) bool {
	expected := Sign(payload, secret, version, from, ts)
	return hmac.Equal(expected, sig)
}
