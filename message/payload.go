package message

import (
	"encoding/binary"
	"fmt"
)

// BlockRequest is the payload of Request and Cancel messages:
// <index u32><begin u32><length u32>, all big-endian.
type BlockRequest struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

// PieceBlock is the payload of a Piece message: <index u32><begin u32><block>.
type PieceBlock struct {
	Index uint32
	Begin uint32
	Block []byte
}

// NewRequest creates a Request message for length bytes at begin within piece index.
func NewRequest(index, begin, length uint32) Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return Message{ID: Request, Payload: payload}
}

// ParseRequest extracts the payload of a Request or Cancel message.
func ParseRequest(msg Message) (BlockRequest, error) {
	if msg.ID != Request && msg.ID != Cancel {
		return BlockRequest{}, fmt.Errorf("expected %s, got %s", Request, msg.ID)
	}
	if len(msg.Payload) != 12 {
		return BlockRequest{}, fmt.Errorf("%w: request payload of length %d, want 12", ErrMalformedPayload, len(msg.Payload))
	}
	return BlockRequest{
		Index:  binary.BigEndian.Uint32(msg.Payload[0:4]),
		Begin:  binary.BigEndian.Uint32(msg.Payload[4:8]),
		Length: binary.BigEndian.Uint32(msg.Payload[8:12]),
	}, nil
}

// ParseHave returns the piece index announced by a Have message.
func ParseHave(msg Message) (int, error) {
	if msg.ID != Have {
		return 0, fmt.Errorf("expected %s, got %s", Have, msg.ID)
	}
	if len(msg.Payload) != 4 {
		return 0, fmt.Errorf("%w: have payload of length %d, want 4", ErrMalformedPayload, len(msg.Payload))
	}
	return int(binary.BigEndian.Uint32(msg.Payload)), nil
}

// NewPiece creates a Piece message carrying block.
func NewPiece(index, begin uint32, block []byte) Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	copy(payload[8:], block)
	return Message{ID: Piece, Payload: payload}
}

// ParsePiece extracts the payload of a Piece message. Block aliases msg.Payload.
func ParsePiece(msg Message) (PieceBlock, error) {
	if msg.ID != Piece {
		return PieceBlock{}, fmt.Errorf("expected %s, got %s", Piece, msg.ID)
	}
	if len(msg.Payload) < 8 {
		return PieceBlock{}, fmt.Errorf("%w: piece payload too short: %d < 8", ErrMalformedPayload, len(msg.Payload))
	}
	return PieceBlock{
		Index: binary.BigEndian.Uint32(msg.Payload[0:4]),
		Begin: binary.BigEndian.Uint32(msg.Payload[4:8]),
		Block: msg.Payload[8:],
	}, nil
}
