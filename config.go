package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/icexin/pixelcraft/client"
	"github.com/icexin/pixelcraft/tile"
)

const (
	TransportWebsocket = "websocket"
	TransportYamux     = "yamux"
)

// View is the square of regions kept filled, Radius regions around the
// region containing (X, Y).
type View struct {
	X, Y   int
	Radius int
}

type Config struct {
	Canvas     string
	Server     string
	Transport  string
	Simulation bool

	RegionSize         int
	CacheCapacity      int
	MaxPendingRequests int
	RequestTimeout     time.Duration
	RequestInterval    time.Duration
	ReadyTimeout       time.Duration

	TileDir    string
	DB         string
	LogLevel   string
	LogFile    string
	DumpFrames bool

	View      View
	Reconnect BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Canvas:             "main",
		Server:             "wss://ourworldofpixels.com/",
		Transport:          TransportWebsocket,
		RegionSize:         1024,
		CacheCapacity:      64,
		MaxPendingRequests: client.MaxPendingRequests,
		RequestTimeout:     client.RequestTimeout,
		RequestInterval:    200 * time.Millisecond,
		ReadyTimeout:       30 * time.Second,
		TileDir:            "tiles",
		DB:                 "pixelcraft.db",
		LogLevel:           "info",
		Reconnect: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2,
			MaxDelay:     time.Minute,
			Jitter:       true,
		},
	}
}

type fileView struct {
	X      int `toml:"x"`
	Y      int `toml:"y"`
	Radius int `toml:"radius"`
}

type fileConfig struct {
	Canvas             string      `toml:"canvas"`
	Server             string      `toml:"server"`
	Transport          string      `toml:"transport"`
	Simulation         bool        `toml:"simulation"`
	RegionSize         int         `toml:"region_size"`
	CacheCapacity      int         `toml:"cache_capacity"`
	MaxPendingRequests int         `toml:"max_pending_requests"`
	RequestTimeout     string      `toml:"request_timeout"`
	RequestInterval    string      `toml:"request_interval"`
	ReadyTimeout       string      `toml:"ready_timeout"`
	TileDir            string      `toml:"tile_dir"`
	DB                 string      `toml:"db"`
	LogLevel           string      `toml:"log_level"`
	LogFile            string      `toml:"log_file"`
	DumpFrames         bool        `toml:"dump_frames"`
	View               fileView    `toml:"view"`
	Reconnect          fileBackoff `toml:"reconnect"`
}

type fileBackoff struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

// LoadConfig overlays the keys present in the TOML file at path onto DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("canvas") {
		cfg.Canvas = strings.TrimSpace(raw.Canvas)
	}
	if meta.IsDefined("server") {
		cfg.Server = strings.TrimSpace(raw.Server)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("simulation") {
		cfg.Simulation = raw.Simulation
	}
	if meta.IsDefined("region_size") {
		cfg.RegionSize = raw.RegionSize
	}
	if meta.IsDefined("cache_capacity") {
		cfg.CacheCapacity = raw.CacheCapacity
	}
	if meta.IsDefined("max_pending_requests") {
		cfg.MaxPendingRequests = raw.MaxPendingRequests
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
		{"request_interval", raw.RequestInterval, &cfg.RequestInterval},
		{"ready_timeout", raw.ReadyTimeout, &cfg.ReadyTimeout},
		{"reconnect.initial_delay", raw.Reconnect.InitialDelay, &cfg.Reconnect.InitialDelay},
		{"reconnect.max_delay", raw.Reconnect.MaxDelay, &cfg.Reconnect.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("tile_dir") {
		cfg.TileDir = strings.TrimSpace(raw.TileDir)
	}
	if meta.IsDefined("db") {
		cfg.DB = strings.TrimSpace(raw.DB)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("dump_frames") {
		cfg.DumpFrames = raw.DumpFrames
	}
	if meta.IsDefined("reconnect", "multiplier") {
		cfg.Reconnect.Multiplier = raw.Reconnect.Multiplier
	}
	if meta.IsDefined("reconnect", "jitter") {
		cfg.Reconnect.Jitter = raw.Reconnect.Jitter
	}
	if meta.IsDefined("view", "x") {
		cfg.View.X = raw.View.X
	}
	if meta.IsDefined("view", "y") {
		cfg.View.Y = raw.View.Y
	}
	if meta.IsDefined("view", "radius") {
		cfg.View.Radius = raw.View.Radius
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var ErrInvalidConfig = errors.New("invalid config")

func (c Config) Validate() error {
	switch {
	case c.Canvas == "":
		return fmt.Errorf("%w: canvas is empty", ErrInvalidConfig)
	case c.Transport != TransportWebsocket && c.Transport != TransportYamux:
		return fmt.Errorf("%w: transport %q", ErrInvalidConfig, c.Transport)
	case !c.Simulation && c.Server == "":
		return fmt.Errorf("%w: server is empty", ErrInvalidConfig)
	case c.RegionSize < tile.ChunkSize || c.RegionSize%tile.ChunkSize != 0:
		return fmt.Errorf("%w: region_size %d is not a multiple of %d", ErrInvalidConfig, c.RegionSize, tile.ChunkSize)
	case c.CacheCapacity < 1:
		return fmt.Errorf("%w: cache_capacity %d", ErrInvalidConfig, c.CacheCapacity)
	case c.MaxPendingRequests < 1:
		return fmt.Errorf("%w: max_pending_requests %d", ErrInvalidConfig, c.MaxPendingRequests)
	case c.RequestTimeout <= 0 || c.RequestInterval <= 0 || c.ReadyTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.Reconnect.InitialDelay <= 0 || c.Reconnect.Multiplier < 1:
		return fmt.Errorf("%w: reconnect backoff", ErrInvalidConfig)
	case c.View.Radius < 0:
		return fmt.Errorf("%w: view radius %d", ErrInvalidConfig, c.View.Radius)
	case c.TileDir == "":
		return fmt.Errorf("%w: tile_dir is empty", ErrInvalidConfig)
	}
	return nil
}
