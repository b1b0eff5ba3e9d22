package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrMalformedPeerList is returned when a compact peer list is not a multiple of 6 bytes.
var ErrMalformedPeerList = errors.New("malformed compact peer list")

// compact form: 4 bytes IPv4 address, 2 bytes big-endian port
const peerSize = 6

type Peer struct {
	IP   net.IP
	Port uint16
}

// Unmarshal peers list from the tracker.
//
// Each peer is 6 bytes long: 4 for IP and 2 for port number.
// Hence, peers list has to be a multiple of 6.
func Unmarshal(peersBinary []byte) ([]Peer, error) {
	if len(peersBinary)%peerSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrMalformedPeerList, len(peersBinary), peerSize)
	}

	numPeers := len(peersBinary) / peerSize
	peers := make([]Peer, numPeers)
	for i := 0; i < numPeers; i++ {
		offset := i * peerSize
		ip := make(net.IP, net.IPv4len)
		copy(ip, peersBinary[offset:offset+4])
		peers[i].IP = ip
		peers[i].Port = binary.BigEndian.Uint16(peersBinary[offset+4 : offset+6])
	}

	return peers, nil
}

// Marshal is the inverse of Unmarshal. Peers without an IPv4 address are skipped.
func Marshal(peers []Peer) []byte {
	buf := make([]byte, 0, len(peers)*peerSize)
	for _, p := range peers {
		ip4 := p.IP.To4()
		if ip4 == nil {
			continue
		}
		buf = append(buf, ip4...)
		buf = binary.BigEndian.AppendUint16(buf, p.Port)
	}
	return buf
}

// Parse reads an "ip:port" address.
func Parse(addr string) (Peer, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Peer{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Peer{}, fmt.Errorf("invalid ip address %q", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Peer{}, fmt.Errorf("invalid port %q", portStr)
	}
	return Peer{IP: ip, Port: uint16(port)}, nil
}

// Return Peer ip and port with suitable format - ip:port
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}
