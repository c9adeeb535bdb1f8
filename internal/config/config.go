// Package config loads the reel configuration file and applies REEL_*
// environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/reel/internal/audio"
	"github.com/zsiec/reel/internal/decode"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/player"
)

// Config is the complete reel configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"` // debug, info, warn, error
	Ingest   IngestConfig   `yaml:"ingest"`
	Playback PlaybackConfig `yaml:"playback"`
	Audio    AudioConfig    `yaml:"audio"`
	API      APIConfig      `yaml:"api"`
	SRT      SRTConfig      `yaml:"srt"`
	QUIC     QUICConfig     `yaml:"quic"`
}

// IngestConfig sizes the per-session ingest buffer.
type IngestConfig struct {
	CapacityBytes    int `yaml:"capacity_bytes"`
	WatermarkDivisor int `yaml:"watermark_divisor"` // refill below capacity/divisor
}

// PlaybackConfig drives the presentation scheduler.
type PlaybackConfig struct {
	QueueDepth  int    `yaml:"queue_depth"`
	RefreshRate int    `yaml:"refresh_rate"` // ticks per second
	CancelMask  uint32 `yaml:"cancel_mask"`  // 0 disables the user combination
	StallTicks  int    `yaml:"stall_ticks"`  // live sources only
}

// AudioConfig describes the LPCM track and the output device.
type AudioConfig struct {
	SampleRate   int           `yaml:"sample_rate"`
	Channels     int           `yaml:"channels"`
	ChunkSamples int           `yaml:"chunk_samples"`
	PullSize     int           `yaml:"pull_size"`
	DevicePeriod time.Duration `yaml:"device_period"`
}

// APIConfig configures the HTTP API. An empty address disables it.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// SRTConfig configures the SRT listener used by "reel listen".
type SRTConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// QUICConfig configures the QUIC publisher used by "reel publish".
type QUICConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	Dir          string        `yaml:"dir"`
	CertValidity time.Duration `yaml:"cert_validity"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			CapacityBytes:    media.DefaultIngestCapacity,
			WatermarkDivisor: media.DefaultWatermarkDivisor,
		},
		Playback: PlaybackConfig{
			QueueDepth:  media.DefaultQueueDepth,
			RefreshRate: media.DefaultRefreshRate,
			StallTicks:  0,
		},
		Audio: AudioConfig{
			SampleRate:   media.DefaultSampleRate,
			Channels:     media.DefaultChannels,
			ChunkSamples: media.DefaultChunkSamples,
			PullSize:     media.DefaultPullSize,
			DevicePeriod: audio.DefaultPeriod,
		},
		API:  APIConfig{Addr: ":8080"},
		SRT:  SRTConfig{ListenAddr: ":6000"},
		QUIC: QUICConfig{ListenAddr: ":4443", Dir: ".", CertValidity: 14 * 24 * time.Hour},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from REEL_* environment variables using
// lookup, normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("REEL_LOG_LEVEL", &c.LogLevel)
	str("REEL_API_ADDR", &c.API.Addr)
	str("REEL_SRT_ADDR", &c.SRT.ListenAddr)
	str("REEL_QUIC_ADDR", &c.QUIC.ListenAddr)
	str("REEL_QUIC_DIR", &c.QUIC.Dir)
	for key, dst := range map[string]*int{
		"REEL_INGEST_CAPACITY": &c.Ingest.CapacityBytes,
		"REEL_QUEUE_DEPTH":     &c.Playback.QueueDepth,
		"REEL_REFRESH_RATE":    &c.Playback.RefreshRate,
		"REEL_STALL_TICKS":     &c.Playback.StallTicks,
		"REEL_SAMPLE_RATE":     &c.Audio.SampleRate,
		"REEL_CHANNELS":        &c.Audio.Channels,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("REEL_CANCEL_MASK"); ok && v != "" {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return fmt.Errorf("REEL_CANCEL_MASK: %w", err)
		}
		c.Playback.CancelMask = uint32(n)
	}
	if _, ok := lookup("DEBUG"); ok {
		c.LogLevel = "debug"
	}
	return nil
}

// Level maps LogLevel onto a slog level.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PlayerOptions builds session options from the configuration.
func (c *Config) PlayerOptions() player.Options {
	opts := player.DefaultOptions()
	opts.Capacity = c.Ingest.CapacityBytes
	opts.WatermarkDivisor = c.Ingest.WatermarkDivisor
	opts.QueueDepth = c.Playback.QueueDepth
	opts.PullSize = c.Audio.PullSize
	opts.DevicePeriod = c.Audio.DevicePeriod
	opts.Audio = decode.TSConfig{
		SampleRate:   c.Audio.SampleRate,
		Channels:     c.Audio.Channels,
		ChunkSamples: c.Audio.ChunkSamples,
	}
	opts.Scheduler = player.SchedulerConfig{
		CancelMask:  c.Playback.CancelMask,
		RefreshRate: c.Playback.RefreshRate,
		StallTicks:  c.Playback.StallTicks,
	}
	return opts
}
