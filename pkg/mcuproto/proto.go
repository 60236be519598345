package mcuproto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Length-prefixed framing used on the SOC <-> MCU link:
//
//	| 0x5A | type | len (u16, BE) | payload[len] | crc16 (u16, BE) |
//
// The checksum covers header and payload. Frames are zero-padded to the
// transport's fixed exchange length, padding is ignored on decode.

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrBufferBusy        = errors.New("send buffer busy")
	ErrFramingError      = errors.New("invalid start of frame")
	ErrLengthOutOfBounds = errors.New("frame length out of bounds")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
)

const (
	StartOfFrame = 0x5A

	HeaderLen   = 4
	ChecksumLen = 2

	// MaxFrameSize is the size of the exclusive send buffer.
	MaxFrameSize = 1472
	// MaxPayloadSize is the largest payload fitting into a single frame.
	MaxPayloadSize = MaxFrameSize - HeaderLen - ChecksumLen
)

// Frame is a decoded inbound frame.
type Frame struct {
	Command Command
	Payload []byte
}

// AppendFrame appends the encoded frame to dst and returns the extended slice.
// The caller is responsible for validating the payload size.
func AppendFrame(dst []byte, cmd Command, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, StartOfFrame, uint8(cmd))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))
	dst = append(dst, payload...)
	return binary.BigEndian.AppendUint16(dst, Checksum(dst[start:]))
}

// Encoder owns the send buffer. Only one frame may be pending at a time; the
// buffer has to be released after every transmission, successful or not.
type Encoder struct {
	buf [MaxFrameSize]byte
	n   int
}

// Encode writes a frame into the send buffer and returns a view of it.
// The returned slice is valid until Release is called.
func (e *Encoder) Encode(cmd Command, payload []byte) ([]byte, error) {
	if e.n != 0 {
		return nil, ErrBufferBusy
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidArgument)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidArgument, len(payload), MaxPayloadSize)
	}

	frame := AppendFrame(e.buf[:0], cmd, payload)
	e.n = len(frame)
	return frame, nil
}

// Pending returns the number of bytes currently held in the send buffer.
func (e *Encoder) Pending() int {
	return e.n
}

// Release drains the send buffer.
func (e *Encoder) Release() {
	clear(e.buf[:e.n])
	e.n = 0
}

// Decode parses a single frame from raw. Trailing bytes beyond the declared
// frame are ignored. The checksum is verified before the payload is returned.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < HeaderLen+ChecksumLen {
		return Frame{}, fmt.Errorf("%w: received %d bytes", ErrLengthOutOfBounds, len(raw))
	}
	if raw[0] != StartOfFrame {
		return Frame{}, fmt.Errorf("%w: got 0x%02x", ErrFramingError, raw[0])
	}

	payloadLen := int(binary.BigEndian.Uint16(raw[2:4]))
	frameLen := HeaderLen + payloadLen + ChecksumLen
	if frameLen > MaxFrameSize || frameLen > len(raw) {
		return Frame{}, fmt.Errorf("%w: declared payload %d, received %d bytes", ErrLengthOutOfBounds, payloadLen, len(raw))
	}

	body := raw[:HeaderLen+payloadLen]
	expected := binary.BigEndian.Uint16(raw[HeaderLen+payloadLen : frameLen])
	if actual := Checksum(body); actual != expected {
		return Frame{}, fmt.Errorf("%w: expected 0x%04x, got 0x%04x", ErrChecksumMismatch, expected, actual)
	}

	payload := make([]byte, payloadLen)
	copy(payload, raw[HeaderLen:HeaderLen+payloadLen])
	return Frame{Command: Command(raw[1]), Payload: payload}, nil
}
