package client

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheZero0-ctrl/bittorrent-go/channel"
)

type Config struct {
	// Port is announced to trackers. Nothing listens on it.
	Port                 uint16
	ShowDownloadProgress bool
	TrackerTimeout       time.Duration
	// RequestsPerSecond paces block requests; zero means unlimited.
	RequestsPerSecond float64
	Channel           channel.Config
	Logger            zerolog.Logger
}

var DefaultConfig = Config{
	Port:                 6881,
	ShowDownloadProgress: true,
	TrackerTimeout:       5 * time.Second,
	Channel:              channel.DefaultConfig,
	Logger:               zerolog.Nop(),
}

func (c Config) Validate() error {
	if c.TrackerTimeout <= 0 {
		return fmt.Errorf("tracker timeout must be positive, got %s", c.TrackerTimeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative, got %g", c.RequestsPerSecond)
	}
	if c.Channel.MaxFrameSize != 0 && c.Channel.MaxFrameSize < 13+16*1024 {
		return fmt.Errorf("max frame size %d cannot carry a full block", c.Channel.MaxFrameSize)
	}
	return nil
}
