package transport

import (
	"encoding/binary"
	"io"

	"github.com/MKWorldWide/divinebus/errs"
)

var byteOrder = binary.BigEndian

// frameHeaderSize is the length prefix size (4 bytes, big-endian).
const frameHeaderSize = 4

// DefaultMaxFrameSize caps frame payloads at 1MiB to avoid abuse.
const DefaultMaxFrameSize = 1 << 20

// EncodeFrame writes a length-prefixed frame to w: 4-byte big-endian length
// followed by the payload. It flushes if w implements Flush (e.g. *bufio.Writer).
func EncodeFrame(w io.Writer, payload []byte, maxSize uint32) error {
	length := uint32(len(payload))
	if length > maxSize {
		return errs.ErrFrameTooLarge
	}
	header := make([]byte, frameHeaderSize)
	byteOrder.PutUint32(header, length)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// DecodeFrame reads one length-prefixed frame from r and returns the payload.
// Uses io.ReadFull so a short read is an error, never a partial frame.
func DecodeFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := byteOrder.Uint32(header)
	if length > maxSize {
		return nil, errs.ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
