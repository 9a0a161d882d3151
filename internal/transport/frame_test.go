package transport_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/roasbeef/holon/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello cluster")

	require.NoError(t, transport.WriteFrame(&buf, payload))

	got, err := transport.ReadFrame(&buf, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, transport.WriteFrame(&buf, make([]byte, 100)))

	_, err := transport.ReadFrame(&buf, 10)
	require.ErrorIs(t, err, transport.ErrFrameTooLarge)
}

func TestReadFrameErrorsOnShortPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, transport.WriteFrame(&buf, []byte("truncated")))

	truncated := bytes.NewReader(buf.Bytes()[:len(buf.Bytes())-3])
	_, err := transport.ReadFrame(truncated, 0)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
