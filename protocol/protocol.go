// Package protocol implements mini-RPC's wire frame: a 4-byte big-endian
// signed length prefix followed by exactly that many payload bytes. It
// solves TCP's sticky-packet problem the same way the teacher's 14-byte
// header did, trimmed to the two fields spec.md §4.1 actually requires —
// the codec choice now travels as the first byte of the payload
// (codec.EncodeEnvelope), and the message kind follows from the direction
// of the connection (one RpcRequest in, one RpcResponse out).
//
// Frame format:
//
//	0          4
//	┌──────────┬───────────────────────────┐
//	│ len (i32)│ payload (len bytes)        │
//	└──────────┴───────────────────────────┘
package protocol

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/mayingwei/MyRPC/errs"
)

// LenSize is the size in bytes of the frame length prefix.
const LenSize = 4

// DefaultMaxFrame is the largest payload this implementation accepts,
// matching spec.md §4.1's "MAX_FRAME implementation-defined but >= 16 MiB".
const DefaultMaxFrame = 16 * 1024 * 1024

// EncodeFrame writes len(payload) then payload to w in a single Write call
// so a partial write can never leave a half-written frame on the wire.
func EncodeFrame(w io.Writer, payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return errs.New(errs.KindProtocol, "payload too large: %d bytes", len(payload))
	}
	buf := make([]byte, LenSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LenSize], uint32(len(payload)))
	copy(buf[LenSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame blocks until it has read one complete frame from r, or fails.
// Used by the one-request-per-connection server/client pipeline, where
// each connection carries exactly one frame in each direction.
func ReadFrame(r io.Reader, maxFrame int) ([]byte, error) {
	var lenBuf [LenSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if n < 0 || int(n) > maxFrame {
		return nil, errs.New(errs.KindProtocol, "invalid frame length %d", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Decoder is a stateful streaming frame decoder, per spec.md §4.1's
// decoder contract: it is fed arbitrary byte chunks (which may contain
// zero, one partial, or several complete frames) and extracts every frame
// that is fully available so far. It marks its read position by retaining
// only the unconsumed tail of its internal buffer between calls, and is
// stateless across frames — each frame is fully self-delimited.
type Decoder struct {
	buf      []byte
	maxFrame int
}

// NewDecoder creates a Decoder that rejects frames larger than maxFrame.
// A maxFrame of 0 selects DefaultMaxFrame.
func NewDecoder(maxFrame int) *Decoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return &Decoder{maxFrame: maxFrame}
}

// Feed appends chunk to the internal buffer and returns every frame payload
// that can now be fully extracted, in arrival order. On a protocol error
// (negative or oversized length) it returns the frames decoded so far plus
// the error; the caller must treat the connection as fatally broken
// (spec.md §7: ProtocolError is fatal to the connection).
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	for {
		if len(d.buf) < LenSize {
			return frames, nil
		}
		n := int32(binary.BigEndian.Uint32(d.buf[:LenSize]))
		if n < 0 || int(n) > d.maxFrame {
			return frames, errs.New(errs.KindProtocol, "invalid frame length %d", n)
		}
		total := LenSize + int(n)
		if len(d.buf) < total {
			return frames, nil
		}
		payload := make([]byte, n)
		copy(payload, d.buf[LenSize:total])
		frames = append(frames, payload)
		d.buf = d.buf[total:]
	}
}
