package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/TheZero0-ctrl/bittorrent-go/announce"
	"github.com/TheZero0-ctrl/bittorrent-go/channel"
	"github.com/TheZero0-ctrl/bittorrent-go/file"
	"github.com/TheZero0-ctrl/bittorrent-go/helper"
	"github.com/TheZero0-ctrl/bittorrent-go/peer"
	"github.com/TheZero0-ctrl/bittorrent-go/torrent"
)

var ErrNoPeers = errors.New("no peers available")

// Client downloads a single torrent, one peer at a time.
type Client struct {
	tf         *file.TorrentFile
	peerID     [20]byte
	config     Config
	httpClient *http.Client
	log        zerolog.Logger
}

func New(tf *file.TorrentFile, config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	peerID := helper.GeneratePeerID()
	return &Client{
		tf:         tf,
		peerID:     peerID,
		config:     config,
		httpClient: &http.Client{Timeout: config.TrackerTimeout},
		log:        config.Logger.With().Str("name", tf.Name).Logger(),
	}, nil
}

func (c *Client) PeerID() [20]byte {
	return c.peerID
}

func (c *Client) Torrent() *file.TorrentFile {
	return c.tf
}

// trackers lists announce followed by the announce-list entries not equal to it.
func (c *Client) trackers() []string {
	seen := map[string]bool{}
	var list []string
	for _, t := range append([]string{c.tf.Announce}, c.tf.AnnounceList...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		list = append(list, t)
	}
	return list
}

// Peers asks each tracker in turn and returns the peers of the first one
// that answers.
func (c *Client) Peers(ctx context.Context) ([]peer.Peer, error) {
	req := announce.Request{
		InfoHash: c.tf.InfoHash(),
		PeerID:   c.peerID,
		Port:     c.config.Port,
		Left:     int64(c.tf.Length),
	}

	var errs []error
	for _, tracker := range c.trackers() {
		res, err := c.announce(ctx, tracker, req)
		if err == nil {
			var peers []peer.Peer
			peers, err = res.PeerList()
			if err == nil {
				c.log.Debug().Str("tracker", tracker).Int("peers", len(peers)).Int("interval", res.Interval).Msg("announced")
				return peers, nil
			}
		}
		c.log.Warn().Err(err).Str("tracker", tracker).Msg("announce failed")
		errs = append(errs, fmt.Errorf("%s: %w", tracker, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: torrent lists no trackers", ErrNoPeers)
	}
	return nil, errors.Join(errs...)
}

func (c *Client) announce(ctx context.Context, tracker string, req announce.Request) (*announce.Response, error) {
	u, err := url.Parse(tracker)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return announce.HTTP(ctx, c.httpClient, tracker, req)
	case "udp":
		ctx, cancel := context.WithTimeout(ctx, c.config.TrackerTimeout)
		defer cancel()
		return announce.UDP(ctx, u.Host, req)
	default:
		return nil, fmt.Errorf("unsupported tracker scheme %q", u.Scheme)
	}
}

// Handshake connects to addr and returns the peer id it answers with.
func (c *Client) Handshake(ctx context.Context, addr string) ([20]byte, error) {
	ch, err := channel.Dial(ctx, addr, c.tf.InfoHash(), c.peerID, c.channelConfig())
	if err != nil {
		return [20]byte{}, err
	}
	defer ch.Close()
	return ch.RemoteID(), nil
}

// Download fetches the whole torrent into outputPath. Peers from the tracker
// are tried in order until one of them serves every piece.
func (c *Client) Download(ctx context.Context, outputPath string) error {
	peers, err := c.Peers(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return ErrNoPeers
	}
	return c.DownloadFrom(ctx, peers, outputPath)
}

// DownloadFrom is Download with an explicit peer list.
func (c *Client) DownloadFrom(ctx context.Context, peers []peer.Peer, outputPath string) (err error) {
	sink, err := file.Create(c.tf, outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}()

	var bar *progress
	if c.config.ShowDownloadProgress {
		bar = startProgress(c.tf.NumPieces())
		defer bar.stop()
	}

	var errs []error
	for _, p := range peers {
		if bar != nil {
			bar.setPeer(p.String())
		}
		err := c.downloadFrom(ctx, p.String(), sink, bar)
		if err == nil {
			c.log.Info().Strs("files", sink.Paths()).Msg("download finished")
			return nil
		}
		c.log.Warn().Err(err).Str("peer", p.String()).Msg("peer failed")
		errs = append(errs, fmt.Errorf("%s: %w", p, err))
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(append([]error{ErrNoPeers}, errs...)...)
}

func (c *Client) downloadFrom(ctx context.Context, addr string, sink torrent.Sink, bar *progress) error {
	ch, err := channel.Dial(ctx, addr, c.tf.InfoHash(), c.peerID, c.channelConfig())
	if err != nil {
		return err
	}
	defer ch.Close()

	opts := []torrent.Option{
		torrent.WithLogger(c.log),
		torrent.WithRateLimit(c.config.RequestsPerSecond),
	}
	if bar != nil {
		bar.reset()
		opts = append(opts, torrent.OnPiece(func(int) { bar.incr() }))
	}
	return torrent.NewSession(c.tf, ch, sink, opts...).Run(ctx)
}

func (c *Client) channelConfig() channel.Config {
	config := c.config.Channel
	config.Logger = c.log
	return config
}
