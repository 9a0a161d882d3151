package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameSize is the default cap on a single frame's payload,
// matching spec.md §6's 16 MiB limit.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFrame when the declared length
// exceeds maxSize. The caller must close the connection; a peer that
// sends an oversize length prefix is either corrupt or hostile and there
// is no way to resynchronize the stream.
var ErrFrameTooLarge = fmt.Errorf("transport: frame exceeds max size")

// WriteFrame writes a uint32be length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: write frame payload: %w", err)
	}

	return nil
}

// ReadFrame reads one length-prefixed frame from r. maxSize bounds the
// accepted payload length; a non-positive maxSize selects
// DefaultMaxFrameSize.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("transport: read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if int(length) > maxSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("transport: read frame payload: %w", err)
	}

	return payload, nil
}
