package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [-v] <command> [arguments]

Commands:
  decode <bencoded value>
  info <torrent>
  peers <torrent>
  handshake <torrent> <ip:port>
  download [-o output] [-rate n] [-progress] <torrent>

`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	verbose := flag.Bool("v", false, "log debug output")
	flag.Usage = usage
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := runCommand(ctx, log, flag.Arg(0), flag.Args()[1:])
	stop()
	if err != nil {
		log.Error().Err(err).Str("command", flag.Arg(0)).Msg("failed")
		os.Exit(1)
	}
}
