package announce

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Request holds the announce parameters sent to a tracker.
type Request struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
}

// URL builds the HTTP announce URL for base.
//
// info_hash is arbitrary binary data, so it is percent-encoded byte by byte
// and appended after the text parameters rather than going through url.Values.
func (r Request) URL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid announce url %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("announce url %q is not http(s)", base)
	}

	params := url.Values{
		"peer_id":    []string{string(r.PeerID[:])},
		"port":       []string{strconv.Itoa(int(r.Port))},
		"uploaded":   []string{strconv.FormatInt(r.Uploaded, 10)},
		"downloaded": []string{strconv.FormatInt(r.Downloaded, 10)},
		"left":       []string{strconv.FormatInt(r.Left, 10)},
		"compact":    []string{"1"},
	}
	query := params.Encode() + "&info_hash=" + EscapeBytes(r.InfoHash[:])
	if u.RawQuery != "" {
		query = u.RawQuery + "&" + query
	}
	u.RawQuery = query
	return u.String(), nil
}

// EscapeBytes percent-encodes every byte of b as %XX.
func EscapeBytes(b []byte) string {
	const hex = "0123456789abcdef"
	var sb strings.Builder
	sb.Grow(3 * len(b))
	for _, c := range b {
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}
