package announce

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/TheZero0-ctrl/bittorrent-go/helper"
)

const (
	protocolID = 0x41727101980

	actionConnect  = 0
	actionAnnounce = 1
	actionError    = 3

	connectLen  = 16
	announceLen = 98

	udpTimeout = 5 * time.Second
)

type connect struct {
	Action        uint32 // request & response
	TransactionID []byte // request & response
	ConnectionID  []byte // response
}

type udpAnnounce struct {
	Action        uint32 // request & response
	TransactionID []byte // request & response

	ConnectionID []byte // request
	Request      Request
	Key          []byte // request
	NumWant      int32  // request

	Interval uint32 // response
	Leechers uint32 // response
	Seeders  uint32 // response
	Peers    []byte // response
}

func newConnect() *connect {
	return &connect{
		Action:        actionConnect,
		TransactionID: helper.GenerateRandomID(4),
	}
}

func (c *connect) serialize() []byte {
	buf := make([]byte, connectLen)
	binary.BigEndian.PutUint64(buf[0:8], protocolID)
	binary.BigEndian.PutUint32(buf[8:12], c.Action)
	copy(buf[12:16], c.TransactionID)
	return buf
}

func readConnect(buf []byte) (*connect, error) {
	if len(buf) < connectLen {
		return nil, fmt.Errorf("connect response too short: %d bytes", len(buf))
	}
	return &connect{
		Action:        binary.BigEndian.Uint32(buf[0:4]),
		TransactionID: append([]byte(nil), buf[4:8]...),
		ConnectionID:  append([]byte(nil), buf[8:16]...),
	}, nil
}

func newUDPAnnounce(req Request, connectionID []byte) *udpAnnounce {
	return &udpAnnounce{
		ConnectionID:  connectionID,
		Action:        actionAnnounce,
		TransactionID: helper.GenerateRandomID(4),
		Request:       req,
		Key:           helper.GenerateRandomID(4),
		NumWant:       -1,
	}
}

func (a *udpAnnounce) serialize() []byte {
	buf := make([]byte, announceLen)
	copy(buf[:8], a.ConnectionID)
	binary.BigEndian.PutUint32(buf[8:12], a.Action)
	copy(buf[12:16], a.TransactionID)
	copy(buf[16:36], a.Request.InfoHash[:])
	copy(buf[36:56], a.Request.PeerID[:])
	binary.BigEndian.PutUint64(buf[56:64], uint64(a.Request.Downloaded))
	binary.BigEndian.PutUint64(buf[64:72], uint64(a.Request.Left))
	binary.BigEndian.PutUint64(buf[72:80], uint64(a.Request.Uploaded))
	binary.BigEndian.PutUint32(buf[80:84], 0) // event: none
	binary.BigEndian.PutUint32(buf[84:88], 0) // ip: sender address
	copy(buf[88:92], a.Key)
	binary.BigEndian.PutUint32(buf[92:96], uint32(a.NumWant))
	binary.BigEndian.PutUint16(buf[96:98], a.Request.Port)
	return buf
}

func readUDPAnnounce(buf []byte) (*udpAnnounce, error) {
	if len(buf) < 20 {
		return nil, fmt.Errorf("announce response too short: %d bytes", len(buf))
	}
	return &udpAnnounce{
		Action:        binary.BigEndian.Uint32(buf[0:4]),
		TransactionID: append([]byte(nil), buf[4:8]...),
		Interval:      binary.BigEndian.Uint32(buf[8:12]),
		Leechers:      binary.BigEndian.Uint32(buf[12:16]),
		Seeders:       binary.BigEndian.Uint32(buf[16:20]),
		Peers:         append([]byte(nil), buf[20:]...),
	}, nil
}

// UDP announces to a udp tracker at host ("ip:port" or "name:port").
func UDP(ctx context.Context, host string, req Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", host)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(udpTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	connectReq := newConnect()
	connectRes, err := exchange(conn, connectReq.serialize(), connectReq.TransactionID, actionConnect)
	if err != nil {
		return nil, err
	}
	cr, err := readConnect(connectRes)
	if err != nil {
		return nil, err
	}

	announceReq := newUDPAnnounce(req, cr.ConnectionID)
	announceRes, err := exchange(conn, announceReq.serialize(), announceReq.TransactionID, actionAnnounce)
	if err != nil {
		return nil, err
	}
	ar, err := readUDPAnnounce(announceRes)
	if err != nil {
		return nil, err
	}

	return &Response{
		Interval: int(ar.Interval),
		Peers:    string(ar.Peers),
	}, nil
}

// exchange writes one packet and reads the matching reply, checking the
// transaction id and action.
func exchange(conn net.Conn, packet, transactionID []byte, action uint32) ([]byte, error) {
	if _, err := conn.Write(packet); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n]
	if len(buf) < 8 {
		return nil, fmt.Errorf("udp tracker reply too short: %d bytes", len(buf))
	}

	gotAction := binary.BigEndian.Uint32(buf[0:4])
	gotTID := buf[4:8]
	if !bytes.Equal(transactionID, gotTID) {
		return nil, fmt.Errorf("expected TID %s received %s", transactionID, gotTID)
	}
	if gotAction == actionError {
		return nil, fmt.Errorf("%w: %s", ErrTrackerFailure, buf[8:])
	}
	if gotAction != action {
		return nil, fmt.Errorf("expected action %d received %d", action, gotAction)
	}
	return buf, nil
}
