package client

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheZero0-ctrl/bittorrent-go/announce"
	"github.com/TheZero0-ctrl/bittorrent-go/bencode"
	"github.com/TheZero0-ctrl/bittorrent-go/channel"
	"github.com/TheZero0-ctrl/bittorrent-go/file"
	"github.com/TheZero0-ctrl/bittorrent-go/handshake"
	"github.com/TheZero0-ctrl/bittorrent-go/message"
	"github.com/TheZero0-ctrl/bittorrent-go/peer"
)

var seederID = [20]byte{'-', 'S', 'D', '0', '0', '0', '1', '-', 's', 'e', 'e', 'd', 'e', 'r', 's', 'e', 'e', 'd', 'e', 'r'}

const testPieceLength = 20000

func makeTorrent(t *testing.T, data []byte, trackers ...string) *file.TorrentFile {
	t.Helper()
	var pieces []byte
	for begin := 0; begin < len(data); begin += testPieceLength {
		end := begin + testPieceLength
		if end > len(data) {
			end = len(data)
		}
		h := sha1.Sum(data[begin:end])
		pieces = append(pieces, h[:]...)
	}

	root := bencode.Dict{
		"announce": bencode.String(trackers[0]),
		"info": bencode.Dict{
			"name":         bencode.String("sample.bin"),
			"length":       bencode.Int(len(data)),
			"piece length": bencode.Int(testPieceLength),
			"pieces":       bencode.String(pieces),
		},
	}
	if len(trackers) > 1 {
		var tiers bencode.List
		for _, tracker := range trackers {
			tiers = append(tiers, bencode.List{bencode.String(tracker)})
		}
		root["announce-list"] = tiers
	}

	tf, err := file.Parse(bencode.Encode(root))
	if err != nil {
		t.Fatal(err)
	}
	return tf
}

func testData() []byte {
	data := make([]byte, 2*testPieceLength+1234)
	rand.New(rand.NewSource(7)).Read(data)
	return data
}

func testConfig() Config {
	config := DefaultConfig
	config.ShowDownloadProgress = false
	config.Channel.ReadTimeout = 5 * time.Second
	config.Channel.WriteTimeout = 5 * time.Second
	return config
}

// startSeeder serves data to every connection on a loopback listener.
func startSeeder(t *testing.T, data []byte) peer.Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go seed(conn, data)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return peer.Peer{IP: addr.IP.To4(), Port: uint16(addr.Port)}
}

func seed(conn net.Conn, data []byte) {
	defer conn.Close()

	hs, err := handshake.Read(conn)
	if err != nil {
		return
	}
	if _, err := conn.Write(handshake.New(hs.InfoHash, seederID).Serialize()); err != nil {
		return
	}

	ch := channel.New(conn, channel.DefaultConfig)
	ctx := context.Background()

	numPieces := (len(data) + testPieceLength - 1) / testPieceLength
	bitfield := message.Availability(make([]byte, (numPieces+7)/8))
	for i := 0; i < numPieces; i++ {
		bitfield.SetPiece(i)
	}
	if err := ch.WriteMessage(ctx, message.Message{ID: message.Bitfield, Payload: bitfield}); err != nil {
		return
	}
	if msg, err := ch.ReadMessage(ctx); err != nil || msg.ID != message.Interested {
		return
	}
	if err := ch.WriteMessage(ctx, message.Message{ID: message.Unchoke}); err != nil {
		return
	}
	for {
		msg, err := ch.ReadMessage(ctx)
		if err != nil {
			return
		}
		req, err := message.ParseRequest(msg)
		if err != nil {
			return
		}
		start := int(req.Index)*testPieceLength + int(req.Begin)
		block := data[start : start+int(req.Length)]
		if err := ch.WriteMessage(ctx, message.NewPiece(req.Index, req.Begin, block)); err != nil {
			return
		}
	}
}

// startTracker answers announces with peers, after checking the request
// carries the expected info hash.
func startTracker(t *testing.T, infoHash func() [20]byte, peers ...peer.Peer) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if ih := infoHash(); query.Get("info_hash") != string(ih[:]) {
			t.Errorf("tracker: unexpected info_hash %q", query.Get("info_hash"))
		}
		if query.Get("compact") != "1" {
			t.Errorf("tracker: expected compact=1, got %q", query.Get("compact"))
		}
		w.Write(bencode.Encode(bencode.Dict{
			"interval": bencode.Int(1800),
			"peers":    bencode.String(peer.Marshal(peers)),
		}))
	}))
	t.Cleanup(server.Close)
	return server
}

func deadPeer(t *testing.T) peer.Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()
	return peer.Peer{IP: addr.IP.To4(), Port: uint16(addr.Port)}
}

func TestDownload(t *testing.T) {
	data := testData()
	seeder := startSeeder(t, data)

	var tf *file.TorrentFile
	tracker := startTracker(t, func() [20]byte { return tf.InfoHash() }, seeder)
	tf = makeTorrent(t, data, tracker.URL+"/announce")

	c, err := New(tf, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "sample.bin")
	if err := c.Download(context.Background(), out); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded file does not match the seeded data")
	}
}

func TestDownloadFromSkipsFailingPeer(t *testing.T) {
	data := testData()
	seeder := startSeeder(t, data)
	tf := makeTorrent(t, data, "http://tracker.invalid/announce")

	c, err := New(tf, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "sample.bin")
	if err := c.DownloadFrom(context.Background(), []peer.Peer{deadPeer(t), seeder}, out); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded file does not match the seeded data")
	}
}

func TestDownloadFromNoUsablePeer(t *testing.T) {
	data := testData()
	tf := makeTorrent(t, data, "http://tracker.invalid/announce")

	c, err := New(tf, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	err = c.DownloadFrom(context.Background(), []peer.Peer{deadPeer(t)}, filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrNoPeers) {
		t.Errorf("expected ErrNoPeers, got %v", err)
	}
	if !errors.Is(err, channel.ErrTransportFailure) {
		t.Errorf("expected the dial failure to be kept, got %v", err)
	}
}

func TestHandshake(t *testing.T) {
	data := testData()
	seeder := startSeeder(t, data)
	tf := makeTorrent(t, data, "http://tracker.invalid/announce")

	c, err := New(tf, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	id, err := c.Handshake(context.Background(), seeder.String())
	if err != nil {
		t.Fatal(err)
	}
	if id != seederID {
		t.Errorf("expected peer id %q, got %q", seederID, id)
	}
}

func TestPeersFallsBackToNextTracker(t *testing.T) {
	data := testData()
	want := peer.Peer{IP: net.IPv4(10, 0, 0, 1).To4(), Port: 51413}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d14:failure reason8:disablede"))
	}))
	defer broken.Close()

	var tf *file.TorrentFile
	working := startTracker(t, func() [20]byte { return tf.InfoHash() }, want)
	tf = makeTorrent(t, data, broken.URL, working.URL)

	c, err := New(tf, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	peers, err := c.Peers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].String() != want.String() {
		t.Errorf("expected [%s], got %v", want, peers)
	}
}

func TestPeersTrackerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d14:failure reason12:unregisterede"))
	}))
	defer server.Close()

	c, err := New(makeTorrent(t, testData(), server.URL), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Peers(context.Background())
	if !errors.Is(err, announce.ErrTrackerFailure) {
		t.Errorf("expected ErrTrackerFailure, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig.Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}

	tests := map[string]func(*Config){
		"no tracker timeout": func(c *Config) { c.TrackerTimeout = 0 },
		"negative rate":      func(c *Config) { c.RequestsPerSecond = -1 },
		"tiny frames":        func(c *Config) { c.Channel.MaxFrameSize = 1024 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig
			mutate(&config)
			if err := config.Validate(); err == nil {
				t.Error("expected an error")
			}
			if _, err := New(makeTorrent(t, testData(), "http://tracker.invalid/"), config); err == nil {
				t.Error("expected New to reject the config")
			}
		})
	}
}
