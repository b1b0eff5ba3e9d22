package peer

import (
	"errors"
	"net"
	"reflect"
	"testing"
)

func TestUnmarshal(t *testing.T) {
	compact := []byte{
		127, 0, 0, 1, 0x1a, 0xe1,
		10, 1, 2, 3, 0x00, 0x50,
	}
	peers, err := Unmarshal(compact)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"127.0.0.1:6881", "10.1.2.3:80"}
	var got []string
	for _, p := range peers {
		got = append(got, p.String())
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	peers, err := Unmarshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 0 {
		t.Errorf("expected no peers, got %v", peers)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	for _, n := range []int{1, 5, 7, 13} {
		_, err := Unmarshal(make([]byte, n))
		if !errors.Is(err, ErrMalformedPeerList) {
			t.Errorf("length %d: expected ErrMalformedPeerList, got %v", n, err)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	peers := []Peer{
		{IP: net.IPv4(192, 168, 0, 7).To4(), Port: 51413},
		{IP: net.IPv4(8, 8, 4, 4).To4(), Port: 1},
	}
	got, err := Unmarshal(Marshal(peers))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, peers) {
		t.Errorf("expected %v, got %v", peers, got)
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("165.232.33.77:51467")
	if err != nil {
		t.Fatal(err)
	}
	if p.Port != 51467 || !p.IP.Equal(net.IPv4(165, 232, 33, 77)) {
		t.Errorf("unexpected peer %v", p)
	}

	for _, bad := range []string{"nope", "1.2.3.4", "1.2.3.4:99999", "host:80"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
