package announce

import (
	"errors"
	"fmt"
	"io"

	"github.com/jackpal/bencode-go"

	"github.com/TheZero0-ctrl/bittorrent-go/peer"
)

// ErrTrackerFailure is returned when the tracker answers with a failure reason.
var ErrTrackerFailure = errors.New("tracker returned failure")

// GET request to tracker URL returns:
//   - interval (time to send GET request for list of peers again)
//   - peers (compact list of peers, 6 bytes each)
type Response struct {
	Interval      int    `bencode:"interval"`
	Peers         string `bencode:"peers"`
	FailureReason string `bencode:"failure reason"`
}

// ReadResponse decodes a bencoded tracker response body.
func ReadResponse(r io.Reader) (*Response, error) {
	res := Response{}
	if err := bencode.Unmarshal(r, &res); err != nil {
		return nil, fmt.Errorf("error decoding tracker response: %w", err)
	}
	if res.FailureReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrTrackerFailure, res.FailureReason)
	}
	return &res, nil
}

// PeerList decodes the compact peers string.
func (r *Response) PeerList() ([]peer.Peer, error) {
	return peer.Unmarshal([]byte(r.Peers))
}
