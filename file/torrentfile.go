package file

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheZero0-ctrl/bittorrent-go/bencode"
)

var (
	ErrInvalidMetadata = errors.New("invalid torrent metadata")
	ErrIndexOutOfRange = errors.New("piece index out of range")
)

const hashLength = 20

// TorrentFile is the typed view of a .torrent descriptor.
type TorrentFile struct {
	Announce     string
	AnnounceList []string
	Name         string
	PieceLength  int
	PieceHashes  [][20]byte
	Length       int         // total length across all files
	Files        []FileEntry // nil for single-file torrents

	// info is kept as decoded so the info hash covers every field,
	// including the ones not projected above.
	info bencode.Dict
}

// FileEntry is one file of a multi-file torrent.
type FileEntry struct {
	Length int
	Path   []string
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidMetadata, fmt.Sprintf(format, args...))
}

// Open reads and parses the torrent file at path.
func Open(path string) (*TorrentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading torrent file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a bencoded torrent descriptor.
func Parse(data []byte) (*TorrentFile, error) {
	v, err := bencode.DecodeAll(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding torrent: %w", err)
	}

	root, ok := v.(bencode.Dict)
	if !ok {
		return nil, invalid("top level value is not a dictionary")
	}
	announce, ok := root.String("announce")
	if !ok {
		return nil, invalid("missing announce")
	}
	info, ok := root.Dict("info")
	if !ok {
		return nil, invalid("missing info dictionary")
	}

	tf := TorrentFile{
		Announce:     announce,
		AnnounceList: flattenAnnounceList(root),
		info:         info,
	}
	if err := tf.projectInfo(); err != nil {
		return nil, err
	}
	return &tf, nil
}

func (tf *TorrentFile) projectInfo() error {
	info := tf.info

	name, ok := info.String("name")
	if !ok {
		return invalid("missing info.name")
	}
	tf.Name = name

	pieceLength, ok := info.Int("piece length")
	if !ok {
		return invalid("missing info.piece length")
	}
	if pieceLength <= 0 {
		return invalid("piece length must be positive, got %d", pieceLength)
	}
	tf.PieceLength = int(pieceLength)

	pieces, ok := info.Bytes("pieces")
	if !ok {
		return invalid("missing info.pieces")
	}
	hashes, err := splitPieceHashes(pieces)
	if err != nil {
		return err
	}
	tf.PieceHashes = hashes

	_, hasLength := info["length"]
	_, hasFiles := info["files"]
	switch {
	case hasLength && hasFiles:
		return invalid("info has both length and files")
	case hasLength:
		length, ok := info.Int("length")
		if !ok || length < 0 || length > math.MaxInt {
			return invalid("info.length must be a non-negative integer")
		}
		tf.Length = int(length)
	case hasFiles:
		files, err := parseFiles(info)
		if err != nil {
			return err
		}
		tf.Files = files
		for i, f := range files {
			if f.Length > math.MaxInt-tf.Length {
				return invalid("total length overflows at files[%d]", i)
			}
			tf.Length += f.Length
		}
	default:
		return invalid("info has neither length nor files")
	}

	want := tf.Length / tf.PieceLength
	if tf.Length%tf.PieceLength != 0 {
		want++
	}
	if len(tf.PieceHashes) != want {
		return invalid("%d piece hashes for %d bytes at piece length %d, want %d",
			len(tf.PieceHashes), tf.Length, tf.PieceLength, want)
	}
	return nil
}

func splitPieceHashes(buf []byte) ([][20]byte, error) {
	if len(buf)%hashLength != 0 {
		return nil, invalid("pieces length %d is not a multiple of %d", len(buf), hashLength)
	}

	numHashes := len(buf) / hashLength
	hashes := make([][20]byte, numHashes)
	for i := 0; i < numHashes; i++ {
		copy(hashes[i][:], buf[i*hashLength:(i+1)*hashLength])
	}
	return hashes, nil
}

func parseFiles(info bencode.Dict) ([]FileEntry, error) {
	list, ok := info.List("files")
	if !ok || len(list) == 0 {
		return nil, invalid("info.files must be a non-empty list")
	}

	files := make([]FileEntry, 0, len(list))
	for i, item := range list {
		d, ok := item.(bencode.Dict)
		if !ok {
			return nil, invalid("files[%d] is not a dictionary", i)
		}
		length, ok := d.Int("length")
		if !ok || length < 0 || length > math.MaxInt {
			return nil, invalid("files[%d].length must be a non-negative integer", i)
		}
		segments, ok := d.List("path")
		if !ok || len(segments) == 0 {
			return nil, invalid("files[%d].path must be a non-empty list", i)
		}

		path := make([]string, len(segments))
		for j, seg := range segments {
			s, ok := seg.(bencode.String)
			if !ok || !localSegment(string(s)) {
				return nil, invalid("files[%d].path[%d] is not a usable path segment", i, j)
			}
			path[j] = string(s)
		}
		files = append(files, FileEntry{Length: int(length), Path: path})
	}
	return files, nil
}

// localSegment reports whether s names a single entry inside its parent
// directory on every platform.
func localSegment(s string) bool {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return false
	}
	return filepath.IsLocal(s)
}

// Only the first tracker of every tier is kept.
func flattenAnnounceList(root bencode.Dict) []string {
	tiers, ok := root.List("announce-list")
	if !ok {
		return nil
	}

	var flat []string
	for _, tier := range tiers {
		urls, ok := tier.(bencode.List)
		if !ok || len(urls) == 0 {
			continue
		}
		if u, ok := urls[0].(bencode.String); ok {
			flat = append(flat, string(u))
		}
	}
	return flat
}

// InfoHash is the SHA-1 of the canonical encoding of the info dictionary.
// It is recomputed on every call.
func (tf *TorrentFile) InfoHash() [20]byte {
	return sha1.Sum(bencode.Encode(tf.info))
}

// Info returns the decoded info dictionary.
func (tf *TorrentFile) Info() bencode.Dict {
	return tf.info
}

func (tf *TorrentFile) IsSingleFile() bool {
	return tf.Files == nil
}

func (tf *TorrentFile) NumPieces() int {
	return len(tf.PieceHashes)
}

// PieceByteRange returns where piece index starts in the flat content and
// how long it is. Only the last piece may be shorter than PieceLength.
func (tf *TorrentFile) PieceByteRange(index int) (offset, length int, err error) {
	if index < 0 || index >= len(tf.PieceHashes) {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(tf.PieceHashes))
	}

	offset = index * tf.PieceLength
	length = tf.PieceLength
	if rest := tf.Length - offset; rest < length {
		length = rest
	}
	return offset, length, nil
}
