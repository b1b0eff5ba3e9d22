package message

import (
	"encoding/binary"
	"fmt"
)

// headerLen is the length prefix plus the tag byte.
const headerLen = 5

// Decoder turns an accumulating byte stream into messages.
//
// Feed appends bytes read from the connection; Next returns the next
// complete message, or ok == false when more bytes are needed. Running
// out of data is not an error.
type Decoder struct {
	MaxFrameSize uint32 // zero means DefaultMaxFrameSize

	buf []byte
}

// NewDecoder returns a Decoder that rejects frames longer than maxFrameSize.
func NewDecoder(maxFrameSize uint32) *Decoder {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{MaxFrameSize: maxFrameSize}
}

// Feed appends p to the buffered stream.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next decodes one frame. Nothing is consumed unless a whole message is returned.
func (d *Decoder) Next() (msg Message, ok bool, err error) {
	if len(d.buf) < headerLen {
		return Message{}, false, nil
	}

	length := binary.BigEndian.Uint32(d.buf[0:4])
	if length == 0 {
		return Message{}, false, ErrEmptyFrame
	}
	limit := d.MaxFrameSize
	if limit == 0 {
		limit = DefaultMaxFrameSize
	}
	if length > limit {
		return Message{}, false, fmt.Errorf("%w: length %d exceeds limit %d", ErrFrameTooLarge, length, limit)
	}

	id := ID(d.buf[4])
	if id > Port {
		return Message{}, false, fmt.Errorf("%w: %d", ErrUnknownMessageTag, d.buf[4])
	}

	frameLen := 4 + int(length)
	if len(d.buf) < frameLen {
		return Message{}, false, nil
	}

	// length >= 1, so the payload is exactly length-1 bytes
	payload := make([]byte, int(length)-1)
	copy(payload, d.buf[headerLen:frameLen])

	n := copy(d.buf, d.buf[frameLen:])
	d.buf = d.buf[:n]

	return Message{ID: id, Payload: payload}, true, nil
}
