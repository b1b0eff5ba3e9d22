package torrent

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/TheZero0-ctrl/bittorrent-go/file"
	"github.com/TheZero0-ctrl/bittorrent-go/message"
)

// data is downloaded in blocks (16kB) and not pieces
const MaxBlockSize = 16 * 1024

var (
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrUnexpectedPieceData = errors.New("unexpected piece data")
	ErrPieceHashMismatch   = errors.New("piece hash mismatch")
)

// Wire is a framed connection to a single peer that has completed the handshake.
type Wire interface {
	ReadMessage(ctx context.Context) (message.Message, error)
	WriteMessage(ctx context.Context, msg message.Message) error
	RemoteID() [20]byte
}

// Sink receives verified pieces at their offset in the flat torrent content.
type Sink interface {
	WritePiece(offset int64, data []byte) error
}

// PieceError records which piece and block a download failed on.
type PieceError struct {
	Index int
	Begin int
	Err   error
}

func (e *PieceError) Error() string {
	return fmt.Sprintf("piece %d (block at %d): %v", e.Index, e.Begin, e.Err)
}

func (e *PieceError) Unwrap() error {
	return e.Err
}

type state int

const (
	awaitBitfield state = iota
	awaitUnchoke
	downloading
	completed
	failed
)

func (s state) String() string {
	switch s {
	case awaitBitfield:
		return "AwaitBitfield"
	case awaitUnchoke:
		return "AwaitUnchoke"
	case downloading:
		return "DownloadPiece"
	case completed:
		return "Completed"
	default:
		return "Failed"
	}
}

// Session downloads every piece of a torrent from one peer, strictly in
// order and with a single outstanding block request.
type Session struct {
	tf   *file.TorrentFile
	wire Wire
	sink Sink

	peerID  [20]byte
	state   state
	index   int    // piece being assembled
	buffer  []byte // accumulated blocks of that piece
	done    bitmap.Bitmap
	avail   message.Availability // pieces the peer advertised
	limiter *rate.Limiter
	log     zerolog.Logger
	onPiece func(index int)
}

type Option func(*Session)

// WithLogger sets the logger used for progress and failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithRateLimit paces block requests to at most perSecond per second.
func WithRateLimit(perSecond float64) Option {
	return func(s *Session) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// OnPiece registers fn to run after each piece has been written to the sink.
func OnPiece(fn func(index int)) Option {
	return func(s *Session) {
		s.onPiece = fn
	}
}

func NewSession(tf *file.TorrentFile, wire Wire, sink Sink, opts ...Option) *Session {
	s := &Session{
		tf:      tf,
		wire:    wire,
		sink:    sink,
		peerID:  wire.RemoteID(),
		done:    bitmap.New(tf.NumPieces()),
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Hex("remote_id", s.peerID[:]).Logger()
	return s
}

// Run drives the session until every piece has been verified and written,
// or until the first error. Pieces written before a failure stay valid.
func (s *Session) Run(ctx context.Context) error {
	if s.state != awaitBitfield {
		return fmt.Errorf("session already ran, state %s", s.state)
	}
	if err := s.run(ctx); err != nil {
		s.state = failed
		s.buffer = nil
		s.log.Error().Err(err).Msg("download failed")
		return err
	}
	s.state = completed
	s.log.Info().Int("pieces", s.tf.NumPieces()).Msg("download completed")
	return nil
}

func (s *Session) run(ctx context.Context) error {
	msg, err := s.wire.ReadMessage(ctx)
	if err != nil {
		return err
	}
	if msg.ID != message.Bitfield {
		return fmt.Errorf("%w: expected %s in state %s, got %s", ErrProtocolViolation, message.Bitfield, s.state, msg.ID)
	}
	s.avail = append(message.Availability(nil), msg.Payload...)
	if missing := s.avail.Missing(s.tf.NumPieces()); missing > 0 {
		s.log.Warn().Int("missing", missing).Msg("peer bitfield does not advertise every piece")
	}

	s.state = awaitUnchoke
	if err := s.wire.WriteMessage(ctx, message.Message{ID: message.Interested}); err != nil {
		return err
	}
	msg, err = s.await(ctx, message.Unchoke)
	if err != nil {
		return err
	}
	if len(msg.Payload) != 0 {
		return fmt.Errorf("%w: %s with %d byte payload", ErrProtocolViolation, msg.ID, len(msg.Payload))
	}

	s.state = downloading
	for index := 0; index < s.tf.NumPieces(); index++ {
		if err := s.downloadPiece(ctx, index); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) downloadPiece(ctx context.Context, index int) error {
	offset, length, err := s.tf.PieceByteRange(index)
	if err != nil {
		return err
	}

	s.index = index
	s.buffer = make([]byte, 0, length)
	if !s.avail.HasPiece(index) {
		s.log.Warn().Int("piece", index).Msg("requesting a piece the peer has not advertised")
	}

	for begin := 0; begin < length; begin += MaxBlockSize {
		blockSize := blockLength(length, begin)
		if err := s.downloadBlock(ctx, begin, blockSize); err != nil {
			return &PieceError{Index: index, Begin: begin, Err: err}
		}
	}

	if err := checkIntegrity(s.buffer, s.tf.PieceHashes[index]); err != nil {
		return &PieceError{Index: index, Begin: 0, Err: err}
	}
	if err := s.sink.WritePiece(int64(offset), s.buffer); err != nil {
		return &PieceError{Index: index, Begin: 0, Err: fmt.Errorf("write piece: %w", err)}
	}
	s.buffer = nil
	s.done.Set(index, true)

	s.log.Debug().Int("piece", index).Int("length", length).Msg("piece verified")
	if s.onPiece != nil {
		s.onPiece(index)
	}
	return nil
}

func (s *Session) downloadBlock(ctx context.Context, begin, blockSize int) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	req := message.NewRequest(uint32(s.index), uint32(begin), uint32(blockSize))
	if err := s.wire.WriteMessage(ctx, req); err != nil {
		return err
	}

	msg, err := s.await(ctx, message.Piece)
	if err != nil {
		return err
	}
	block, err := message.ParsePiece(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedPieceData, err)
	}
	if int(block.Index) != s.index {
		return fmt.Errorf("%w: expected index %d, got index %d", ErrUnexpectedPieceData, s.index, block.Index)
	}
	if int(block.Begin) != begin {
		return fmt.Errorf("%w: expected begin %d, got begin %d", ErrUnexpectedPieceData, begin, block.Begin)
	}
	if len(block.Block) != blockSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrUnexpectedPieceData, blockSize, len(block.Block))
	}

	s.buffer = append(s.buffer, block.Block...)
	return nil
}

// await reads until a message with the given id arrives. Have messages only
// update the peer's availability and repeated chokes are skipped while
// waiting to be unchoked. Anything else is a protocol violation.
func (s *Session) await(ctx context.Context, id message.ID) (message.Message, error) {
	for {
		msg, err := s.wire.ReadMessage(ctx)
		if err != nil {
			return message.Message{}, err
		}
		switch {
		case msg.ID == id:
			return msg, nil
		case msg.ID == message.Have:
			if index, err := message.ParseHave(msg); err == nil {
				s.avail.SetPiece(index)
				s.log.Trace().Int("piece", index).Msg("peer has piece")
			}
		case msg.ID == message.Choke && id == message.Unchoke:
			s.log.Trace().Msg("still choked")
		default:
			return message.Message{}, fmt.Errorf("%w: expected %s in state %s, got %s", ErrProtocolViolation, id, s.state, msg.ID)
		}
	}
}

// blockLength is MaxBlockSize except for a short final block.
func blockLength(pieceLength, begin int) int {
	if rest := pieceLength - begin; rest < MaxBlockSize {
		return rest
	}
	return MaxBlockSize
}

func checkIntegrity(buf []byte, want [20]byte) error {
	hash := sha1.Sum(buf)
	if !bytes.Equal(hash[:], want[:]) {
		return fmt.Errorf("%w: expected %x, got %x", ErrPieceHashMismatch, want, hash)
	}
	return nil
}

// PeerHas reports whether the peer has advertised piece index, through its
// bitfield or a later Have message.
func (s *Session) PeerHas(index int) bool {
	return s.avail.HasPiece(index)
}

// Done reports whether piece index has been verified and written.
func (s *Session) Done(index int) bool {
	if index < 0 || index >= s.tf.NumPieces() {
		return false
	}
	return s.done.Get(index)
}

// Completed returns the number of pieces written so far.
func (s *Session) Completed() int {
	n := 0
	for i := 0; i < s.tf.NumPieces(); i++ {
		if s.done.Get(i) {
			n++
		}
	}
	return n
}
