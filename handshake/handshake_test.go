package handshake

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

var (
	infoHash = [20]byte{0xd6, 0x9f, 0x91, 0xe6, 0xb2, 0xae, 0x4c, 0x54, 0x24, 0x68, 0xd1, 0x07, 0x3a, 0x71, 0xd4, 0xea, 0x13, 0x87, 0x9a, 0x7f}
	peerID   = [20]byte{'-', 'G', 'B', '0', '0', '0', '1', '-', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l'}
)

func TestSerialize(t *testing.T) {
	buf := New(infoHash, peerID).Serialize()

	if len(buf) != Length {
		t.Fatalf("expected %d bytes, got %d", Length, len(buf))
	}
	if buf[0] != 19 {
		t.Errorf("expected pstrlen 19, got %d", buf[0])
	}
	if string(buf[1:20]) != Protocol {
		t.Errorf("unexpected pstr %q", buf[1:20])
	}
	if !bytes.Equal(buf[20:28], make([]byte, 8)) {
		t.Errorf("reserved bytes not zero: % x", buf[20:28])
	}
	if !bytes.Equal(buf[28:48], infoHash[:]) {
		t.Errorf("unexpected info hash % x", buf[28:48])
	}
	if !bytes.Equal(buf[48:68], peerID[:]) {
		t.Errorf("unexpected peer id % x", buf[48:68])
	}
}

func TestReadRoundTrip(t *testing.T) {
	sent := New(infoHash, peerID)
	got, err := Read(bytes.NewReader(sent.Serialize()))
	if err != nil {
		t.Fatal(err)
	}
	if *got != *sent {
		t.Errorf("expected %+v, got %+v", sent, got)
	}
	if err := got.Verify(infoHash); err != nil {
		t.Errorf("expected verification to pass: %v", err)
	}
}

func TestReadShort(t *testing.T) {
	buf := New(infoHash, peerID).Serialize()
	_, err := Read(bytes.NewReader(buf[:40]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestVerifyRejectsWrongProtocolName(t *testing.T) {
	buf := New(infoHash, peerID).Serialize()
	copy(buf[1:20], "BitTorrent protocoX")

	reply, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if err := reply.Verify(infoHash); !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("expected ErrHandshakeFailed, got %v", err)
	}
}

func TestVerifyRejectsWrongPstrLen(t *testing.T) {
	buf := New(infoHash, peerID).Serialize()
	buf[0] = 18

	reply, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if err := reply.Verify(infoHash); !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("expected ErrHandshakeFailed, got %v", err)
	}
}

func TestVerifyRejectsWrongInfoHash(t *testing.T) {
	other := infoHash
	other[19] ^= 0xff

	reply := New(other, peerID)
	if err := reply.Verify(infoHash); !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("expected ErrHandshakeFailed, got %v", err)
	}
}

func TestReadFromOverwritesInPlace(t *testing.T) {
	remoteID := [20]byte{}
	copy(remoteID[:], "-XX0000-remote-peer!")

	h := New(infoHash, peerID)
	if _, err := h.ReadFrom(bytes.NewReader(New(infoHash, remoteID).Serialize())); err != nil {
		t.Fatal(err)
	}
	if h.PeerID != remoteID {
		t.Errorf("expected remote peer id, got %q", h.PeerID)
	}
}
