package message

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ID is the tag byte that follows the length prefix.
type ID uint8

// All message IDs:
//   - choke 0 (communication channel not ready to receive messages)
//   - unchoke 1 (communication channel ready to receive messages)
//   - interested 2 (communication channel ready to send messages)
//   - not interested 3 (communication channel not ready to send messages)
//   - have 4 (piece index downloader/peer downloaded/has)
//   - bitfield 5 (encode which piece peer is able to send)
//   - request 6 (message payload of the form <index><begin><length> requesting a piece)
//   - piece 7 (message payload of the form <index><begin><block> containing a piece)
//   - cancel 8 (identical to request message used to cancel block requests)
//   - port 9 (DHT listen port)
const (
	Choke         ID = 0
	Unchoke       ID = 1
	Interested    ID = 2
	NotInterested ID = 3
	Have          ID = 4
	Bitfield      ID = 5
	Request       ID = 6
	Piece         ID = 7
	Cancel        ID = 8
	Port          ID = 9
)

var (
	ErrFrameTooLarge     = errors.New("frame too large")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrUnknownMessageTag = errors.New("unknown message tag")
	ErrEmptyFrame        = errors.New("zero-length frame")
	ErrMalformedPayload  = errors.New("malformed message payload")
)

// DefaultMaxFrameSize bounds the length prefix of a frame (tag + payload).
// A 16 KiB block plus its 9 byte header fits with room to spare.
const DefaultMaxFrameSize = 1 << 16

// Every message is of the following form:
// | Message Length (4 bytes, big-endian) | Message ID (1 byte) | Payload |
//
// The length counts the ID byte plus the payload.
type Message struct {
	ID      ID
	Payload []byte
}

// Encode appends the frame for msg to dst. Payloads that would exceed
// maxFrameSize fail before anything is appended.
func Encode(dst []byte, msg Message, maxFrameSize uint32) ([]byte, error) {
	if msg.ID > Port {
		return dst, fmt.Errorf("%w: %d", ErrUnknownMessageTag, msg.ID)
	}
	if uint64(len(msg.Payload))+1 > uint64(maxFrameSize) {
		return dst, fmt.Errorf("%w: %d bytes exceeds frame limit %d", ErrPayloadTooLarge, len(msg.Payload), maxFrameSize)
	}

	length := uint32(len(msg.Payload) + 1) // payload + ID (1 byte)
	dst = binary.BigEndian.AppendUint32(dst, length)
	dst = append(dst, byte(msg.ID))
	dst = append(dst, msg.Payload...)
	return dst, nil
}

// Serialize puts together a frame using DefaultMaxFrameSize.
func (msg Message) Serialize() ([]byte, error) {
	return Encode(nil, msg, DefaultMaxFrameSize)
}

func (id ID) String() string {
	switch id {
	case Choke:
		return "Choke"
	case Unchoke:
		return "Unchoke"
	case Interested:
		return "Interested"
	case NotInterested:
		return "NotInterested"
	case Have:
		return "Have"
	case Bitfield:
		return "Bitfield"
	case Request:
		return "Request"
	case Piece:
		return "Piece"
	case Cancel:
		return "Cancel"
	case Port:
		return "Port"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(id))
	}
}

func (msg Message) String() string {
	return fmt.Sprintf("%s [%d]", msg.ID, len(msg.Payload))
}
