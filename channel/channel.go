package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheZero0-ctrl/bittorrent-go/handshake"
	"github.com/TheZero0-ctrl/bittorrent-go/message"
)

var (
	ErrTimeout          = errors.New("timeout")
	ErrTransportFailure = errors.New("transport failure")
)

// Config holds per-connection deadlines. A zero timeout disables that deadline.
type Config struct {
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxFrameSize     uint32
	Logger           zerolog.Logger
}

var DefaultConfig = Config{
	DialTimeout:      5 * time.Second,
	HandshakeTimeout: 5 * time.Second,
	ReadTimeout:      30 * time.Second,
	WriteTimeout:     30 * time.Second,
	MaxFrameSize:     message.DefaultMaxFrameSize,
	Logger:           zerolog.Nop(),
}

// Channel is the framed message connection between client and one peer.
type Channel struct {
	Conn     net.Conn
	config   Config
	decoder  *message.Decoder
	readBuf  []byte
	remoteID [20]byte
	log      zerolog.Logger
}

// New wraps an established connection.
func New(conn net.Conn, config Config) *Channel {
	return &Channel{
		Conn:    conn,
		config:  config,
		decoder: message.NewDecoder(config.MaxFrameSize),
		readBuf: make([]byte, 32*1024),
		log:     config.Logger.With().Str("peer", conn.RemoteAddr().String()).Logger(),
	}
}

// Dial connects to addr and performs the handshake.
func Dial(ctx context.Context, addr string, infoHash, peerID [20]byte, config Config) (*Channel, error) {
	d := net.Dialer{Timeout: config.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("dial %s: %w", addr, err))
	}

	ch := New(conn, config)
	if err := ch.Handshake(ctx, infoHash, peerID); err != nil {
		return nil, err
	}
	return ch, nil
}

// Handshake sends our handshake, reads the reply into the same record and
// verifies it. On failure the connection is closed.
func (ch *Channel) Handshake(ctx context.Context, infoHash, peerID [20]byte) (err error) {
	defer func() {
		if err != nil {
			ch.Conn.Close()
		}
	}()

	stop := ch.watch(ctx)
	defer stop()

	ch.Conn.SetDeadline(deadline(ch.config.HandshakeTimeout))
	defer ch.Conn.SetDeadline(time.Time{})
	if err := ctx.Err(); err != nil {
		return err
	}

	h := handshake.New(infoHash, peerID)
	if _, err := ch.Conn.Write(h.Serialize()); err != nil {
		return classify(ctx, fmt.Errorf("write handshake: %w", err))
	}
	if _, err := h.ReadFrom(ch.Conn); err != nil {
		return classify(ctx, fmt.Errorf("read handshake: %w", err))
	}
	if err := h.Verify(infoHash); err != nil {
		return err
	}

	ch.remoteID = h.PeerID
	ch.log.Debug().Hex("remote_id", h.PeerID[:]).Msg("handshake verified")
	return nil
}

// ReadMessage blocks until one complete message has been received.
func (ch *Channel) ReadMessage(ctx context.Context) (message.Message, error) {
	stop := ch.watch(ctx)
	defer stop()

	for {
		msg, ok, err := ch.decoder.Next()
		if err != nil {
			return message.Message{}, err
		}
		if ok {
			ch.log.Trace().Stringer("msg", msg).Int("buffered", ch.decoder.Buffered()).Msg("received")
			return msg, nil
		}

		ch.Conn.SetReadDeadline(deadline(ch.config.ReadTimeout))
		if err := ctx.Err(); err != nil {
			return message.Message{}, err
		}
		n, err := ch.Conn.Read(ch.readBuf)
		ch.decoder.Feed(ch.readBuf[:n])
		if err != nil && n == 0 {
			return message.Message{}, classify(ctx, fmt.Errorf("read: %w", err))
		}
	}
}

// WriteMessage frames and sends msg.
func (ch *Channel) WriteMessage(ctx context.Context, msg message.Message) error {
	buf, err := message.Encode(nil, msg, ch.config.MaxFrameSize)
	if err != nil {
		return err
	}

	stop := ch.watch(ctx)
	defer stop()

	ch.Conn.SetWriteDeadline(deadline(ch.config.WriteTimeout))
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ch.Conn.Write(buf); err != nil {
		return classify(ctx, fmt.Errorf("write %s: %w", msg.ID, err))
	}
	ch.log.Trace().Stringer("msg", msg).Msg("sent")
	return nil
}

// RemoteID is the peer id received in the handshake.
func (ch *Channel) RemoteID() [20]byte {
	return ch.remoteID
}

func (ch *Channel) Close() error {
	return ch.Conn.Close()
}

// watch makes blocked I/O return as soon as ctx is done. Deadlines must be
// set before checking ctx.Err, or a cancellation could be overwritten.
func (ch *Channel) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		ch.Conn.SetDeadline(time.Unix(1, 0))
	})
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// classify maps an I/O error onto ErrTimeout, the context error or ErrTransportFailure.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}
