package handshake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrHandshakeFailed is returned when the peer's handshake does not match ours.
var ErrHandshakeFailed = errors.New("handshake failed")

const (
	// Length of handshake string in bytes.
	Length = 68

	Protocol = "BitTorrent protocol"
)

// Handshake string consists of (in order):
//   - 1 byte for pstr length (length of protocol identifier - has to be 19)
//   - 19 bytes for pstr (protocol identifier - BitTorrent protocol)
//   - 8 reserved bytes for extension support (not supported here)
//   - 20 bytes for infohash (SHA-1 of bencoded info dictionary)
//   - 20 bytes for peerID (random id to identify ourselves)
type Handshake struct {
	PstrLen  byte
	Pstr     [19]byte
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// New creates a Handshake with the given infoHash and peerID.
func New(infoHash, peerID [20]byte) *Handshake {
	h := &Handshake{
		PstrLen:  byte(len(Protocol)),
		InfoHash: infoHash,
		PeerID:   peerID,
	}
	copy(h.Pstr[:], Protocol)
	return h
}

// Serialize puts together the 68 byte handshake string.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, Length)
	buf[0] = h.PstrLen
	curr := 1
	curr += copy(buf[curr:], h.Pstr[:])
	curr += copy(buf[curr:], h.Reserved[:])
	curr += copy(buf[curr:], h.InfoHash[:])
	copy(buf[curr:], h.PeerID[:])
	return buf
}

// ReadFrom overwrites h with exactly Length bytes read from r.
// Nothing is validated here; see Verify.
func (h *Handshake) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, Length)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return int64(n), err
	}

	h.PstrLen = buf[0]
	curr := 1
	curr += copy(h.Pstr[:], buf[curr:])
	curr += copy(h.Reserved[:], buf[curr:])
	curr += copy(h.InfoHash[:], buf[curr:])
	copy(h.PeerID[:], buf[curr:])
	return int64(n), nil
}

// Read reads a handshake from r.
func Read(r io.Reader) (*Handshake, error) {
	h := &Handshake{}
	if _, err := h.ReadFrom(r); err != nil {
		return nil, err
	}
	return h, nil
}

// Verify checks a reply against the info hash we expect.
func (h *Handshake) Verify(infoHash [20]byte) error {
	if h.PstrLen != byte(len(Protocol)) {
		return fmt.Errorf("%w: pstr length should be %d but is %d", ErrHandshakeFailed, len(Protocol), h.PstrLen)
	}
	if !bytes.Equal(h.Pstr[:], []byte(Protocol)) {
		return fmt.Errorf("%w: unexpected protocol %q", ErrHandshakeFailed, h.Pstr[:])
	}
	if h.InfoHash != infoHash {
		return fmt.Errorf("%w: expected infohash %x but got %x", ErrHandshakeFailed, infoHash, h.InfoHash)
	}
	return nil
}
