package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFramePayload limits a single protocol frame payload.
	MaxFramePayload = 1 << 20 // 1 MiB

	// compressThreshold is the payload size from which LZ4 is attempted.
	compressThreshold = 256
)

var (
	ErrFrameTooLarge = errors.New("protocol frame payload too large")
	ErrInvalidType   = errors.New("protocol invalid message type")
	ErrTypeMismatch  = errors.New("protocol frame type does not match message")
)

// Frame is the basic wire container.
// Format:
//
//	1 byte: type
//	4 bytes: payload length (big endian)
//	N bytes: payload
//
// Frames are written back to back on one ordered stream, so ReadFrame never reads past
// the end of the frame it returns.
type Frame struct {
	Type    MessageType
	Payload []byte
}

func WriteFrame(w io.Writer, f Frame) error {
	if f.Type == 0 {
		return ErrInvalidType
	}
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 5+len(f.Payload))
	buf[0] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(f.Payload)))
	copy(buf[5:], f.Payload)
	_, err := w.Write(buf)
	return err
}

func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	mt := MessageType(hdr[0])
	if mt == 0 {
		return Frame{}, ErrInvalidType
	}
	payloadLen := binary.BigEndian.Uint32(hdr[1:])
	if payloadLen > MaxFramePayload {
		return Frame{}, fmt.Errorf("%w: %d", ErrFrameTooLarge, payloadLen)
	}
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: mt, Payload: payload}, nil
}

type wireMessage struct {
	Message
	Compressed bool `json:"compressed,omitempty"`
}

// EncodeMessage validates m and packs it into a frame no larger than MaxFramePayload.
// Application payloads are LZ4-compressed when that makes them smaller.
func EncodeMessage(m Message) (Frame, error) {
	if err := m.Validate(); err != nil {
		return Frame{}, err
	}
	wm := wireMessage{Message: m}
	if m.Type == MessageTypeApplicationMessage && len(m.Payload) >= compressThreshold {
		if packed, ok := CompressIfSmaller(m.Payload); ok {
			wm.Payload = packed
			wm.Compressed = true
		}
	}
	payload, err := json.Marshal(wm)
	if err != nil {
		return Frame{}, err
	}
	if len(payload) > MaxFramePayload {
		return Frame{}, fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}
	return Frame{Type: m.Type, Payload: payload}, nil
}

func DecodeMessage(f Frame) (Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(f.Payload, &wm); err != nil {
		return Message{}, err
	}
	if wm.Type != f.Type {
		return Message{}, fmt.Errorf("%w: frame %s, message %s", ErrTypeMismatch, f.Type, wm.Type)
	}
	if wm.Compressed {
		plain, err := Decompress(wm.Payload)
		if err != nil {
			return Message{}, err
		}
		wm.Payload = plain
	}
	if err := wm.Message.Validate(); err != nil {
		return Message{}, err
	}
	return wm.Message, nil
}

// WriteMessage encodes m and writes it as one frame.
func WriteMessage(w io.Writer, m Message) error {
	f, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, f)
}

// ReadMessage reads one frame and decodes it.
func ReadMessage(r io.Reader) (Message, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return DecodeMessage(f)
}
