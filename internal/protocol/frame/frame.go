package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic     uint32 = 0x54454348
	Version   uint16 = 1
	HeaderLen uint16 = 32
)

var (
	ErrShortHeader       = errors.New("frame: short header")
	ErrInvalidMagic      = errors.New("frame: invalid magic")
	ErrUnsupportedVer    = errors.New("frame: unsupported version")
	ErrHeaderLenMismatch = errors.New("frame: header_len mismatch")
	ErrReservedFlags     = errors.New("frame: reserved flags set")
	ErrPayloadTooLarge   = errors.New("frame: payload too large")
	ErrShortPayload      = errors.New("frame: short payload")
)

// Header is the fixed wire header preceding every channel payload.
type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	Sequence   uint64
	Channel    uint32
	Flags      uint32
	PayloadLen uint64
}

// Frame is one complete channel message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

func (l Limits) WithDefaults() Limits {
	if l.MaxPayloadBytes == 0 {
		l.MaxPayloadBytes = DefaultLimits().MaxPayloadBytes
	}
	return l
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if err := validateHeader(h, limits); err != nil {
		return Frame{}, err
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return Frame{}, ErrShortPayload
			}
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	b, err := Encode(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Encode renders f as one contiguous buffer. Magic, version, header length
// and payload length are always filled in from the payload.
func Encode(f Frame, limits Limits) ([]byte, error) {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = HeaderLen
	h.PayloadLen = payloadLen

	buf := make([]byte, int(HeaderLen)+len(f.Payload))
	putHeader(buf[:HeaderLen], h)
	copy(buf[HeaderLen:], f.Payload)
	return buf, nil
}

// Decode parses a single frame held entirely in b, as delivered by a
// message-oriented transport.
func Decode(b []byte, limits Limits) (Frame, error) {
	if len(b) < int(HeaderLen) {
		return Frame{}, ErrShortHeader
	}
	h, err := DecodeHeader(b[:HeaderLen])
	if err != nil {
		return Frame{}, err
	}
	if err := validateHeader(h, limits); err != nil {
		return Frame{}, err
	}
	rest := b[HeaderLen:]
	if uint64(len(rest)) < h.PayloadLen {
		return Frame{}, ErrShortPayload
	}
	if uint64(len(rest)) > h.PayloadLen {
		return Frame{}, fmt.Errorf("frame: %d trailing bytes", uint64(len(rest))-h.PayloadLen)
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, rest)
	return Frame{Header: h, Payload: payload}, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	putHeader(buf, h)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(HeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint16(b[4:6]),
		HeaderLen:  binary.LittleEndian.Uint16(b[6:8]),
		Sequence:   binary.LittleEndian.Uint64(b[8:16]),
		Channel:    binary.LittleEndian.Uint32(b[16:20]),
		Flags:      binary.LittleEndian.Uint32(b[20:24]),
		PayloadLen: binary.LittleEndian.Uint64(b[24:32]),
	}, nil
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sequence)
	binary.LittleEndian.PutUint32(buf[16:20], h.Channel)
	binary.LittleEndian.PutUint32(buf[20:24], h.Flags)
	binary.LittleEndian.PutUint64(buf[24:32], h.PayloadLen)
}

func validateHeader(h Header, limits Limits) error {
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	if h.Version != Version {
		return ErrUnsupportedVer
	}
	if h.HeaderLen != HeaderLen {
		return ErrHeaderLenMismatch
	}
	if h.Flags != 0 {
		return ErrReservedFlags
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}
