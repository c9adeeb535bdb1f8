package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zsiec/reel/internal/ingest"
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	check(c.Ingest.CapacityBytes > 0 && c.Ingest.CapacityBytes <= ingest.MaxCapacity,
		"ingest.capacity_bytes must be in (0, %d]", ingest.MaxCapacity)
	check(c.Ingest.WatermarkDivisor >= 1, "ingest.watermark_divisor must be >= 1")
	check(c.Playback.QueueDepth >= 1, "playback.queue_depth must be >= 1")
	check(c.Playback.RefreshRate > 0 && c.Playback.RefreshRate <= 1000, "playback.refresh_rate must be in (0, 1000]")
	check(c.Playback.StallTicks >= 0, "playback.stall_ticks must be >= 0")
	check(c.Audio.SampleRate > 0, "audio.sample_rate must be > 0")
	check(c.Audio.Channels == 1 || c.Audio.Channels == 2, "audio.channels must be 1 or 2")
	check(c.Audio.ChunkSamples > 0, "audio.chunk_samples must be > 0")
	check(c.Audio.PullSize > 0, "audio.pull_size must be > 0")
	check(c.Audio.DevicePeriod > 0, "audio.device_period must be > 0")
	check(c.QUIC.CertValidity > 0, "quic.cert_validity must be > 0")

	return errors.Join(errs...)
}
