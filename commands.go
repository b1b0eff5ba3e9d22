package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/TheZero0-ctrl/bittorrent-go/bencode"
	"github.com/TheZero0-ctrl/bittorrent-go/client"
	"github.com/TheZero0-ctrl/bittorrent-go/file"
)

var errUsage = errors.New("invalid arguments")

func runCommand(ctx context.Context, log zerolog.Logger, command string, args []string) error {
	switch command {
	case "decode":
		if len(args) != 1 {
			return fmt.Errorf("%w: decode <bencoded value>", errUsage)
		}
		return handleDecode(os.Stdout, args[0])
	case "info":
		if len(args) != 1 {
			return fmt.Errorf("%w: info <torrent>", errUsage)
		}
		return handleInfo(os.Stdout, args[0])
	case "peers":
		if len(args) != 1 {
			return fmt.Errorf("%w: peers <torrent>", errUsage)
		}
		return handlePeers(ctx, log, os.Stdout, args[0])
	case "handshake":
		if len(args) != 2 {
			return fmt.Errorf("%w: handshake <torrent> <ip:port>", errUsage)
		}
		return handleHandshake(ctx, log, os.Stdout, args[0], args[1])
	case "download":
		return handleDownload(ctx, log, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func handleDecode(w io.Writer, bencodedValue string) error {
	decoded, err := bencode.DecodeAll([]byte(bencodedValue))
	if err != nil {
		return err
	}
	out, err := json.Marshal(jsonValue(decoded))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// jsonValue converts a decoded value into something encoding/json can print.
// Byte strings are shown as text.
func jsonValue(v bencode.Value) interface{} {
	switch v := v.(type) {
	case bencode.Int:
		return int64(v)
	case bencode.String:
		return string(v)
	case bencode.List:
		list := make([]interface{}, len(v))
		for i, item := range v {
			list[i] = jsonValue(item)
		}
		return list
	case bencode.Dict:
		dict := make(map[string]interface{}, len(v))
		for k, item := range v {
			dict[k] = jsonValue(item)
		}
		return dict
	}
	return nil
}

func handleInfo(w io.Writer, torrentPath string) error {
	tf, err := file.Open(torrentPath)
	if err != nil {
		return err
	}

	infoHash := tf.InfoHash()
	fmt.Fprintf(w, "Tracker URL: %s\n", tf.Announce)
	fmt.Fprintf(w, "Length: %d\n", tf.Length)
	fmt.Fprintf(w, "Info Hash: %s\n", hex.EncodeToString(infoHash[:]))
	fmt.Fprintf(w, "Piece Length: %d\n", tf.PieceLength)
	fmt.Fprintln(w, "Piece Hashes:")
	for _, h := range tf.PieceHashes {
		fmt.Fprintln(w, hex.EncodeToString(h[:]))
	}
	keys := make([]string, 0, len(tf.Info()))
	for k := range tf.Info() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "Info Keys: %v\n", keys)
	if !tf.IsSingleFile() {
		fmt.Fprintln(w, "Files:")
		for _, f := range tf.Files {
			fmt.Fprintf(w, "%d %v\n", f.Length, f.Path)
		}
	}
	return nil
}

func newClient(log zerolog.Logger, torrentPath string, config client.Config) (*client.Client, error) {
	tf, err := file.Open(torrentPath)
	if err != nil {
		return nil, err
	}
	config.Logger = log
	return client.New(tf, config)
}

func handlePeers(ctx context.Context, log zerolog.Logger, w io.Writer, torrentPath string) error {
	c, err := newClient(log, torrentPath, client.DefaultConfig)
	if err != nil {
		return err
	}
	peers, err := c.Peers(ctx)
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Fprintln(w, p)
	}
	return nil
}

func handleHandshake(ctx context.Context, log zerolog.Logger, w io.Writer, torrentPath, addr string) error {
	c, err := newClient(log, torrentPath, client.DefaultConfig)
	if err != nil {
		return err
	}
	peerID, err := c.Handshake(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Peer ID: %s\n", hex.EncodeToString(peerID[:]))
	return nil
}

func handleDownload(ctx context.Context, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	output := fs.String("o", "", "output path (defaults to the torrent name)")
	rate := fs.Float64("rate", 0, "maximum block requests per second, 0 for unlimited")
	showProgress := fs.Bool("progress", false, "show a progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: download [-o output] <torrent>", errUsage)
	}

	config := client.DefaultConfig
	config.RequestsPerSecond = *rate
	config.ShowDownloadProgress = *showProgress
	c, err := newClient(log, fs.Arg(0), config)
	if err != nil {
		return err
	}

	out := *output
	if out == "" {
		out = c.Torrent().Name
	}
	if err := c.Download(ctx, out); err != nil {
		return err
	}
	log.Info().Str("output", out).Msg("downloaded")
	return nil
}
