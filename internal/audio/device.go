package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
)

// DefaultPeriod is how much audio the device requests per callback.
const DefaultPeriod = 20 * time.Millisecond

// Device stands in for audio hardware: it drains a beep.Streamer at the
// sample rate, one period per tick, optionally encoding the samples to a
// PCM writer.
type Device struct {
	streamer beep.Streamer
	format   beep.Format
	period   time.Duration
	out      io.Writer
	log      *slog.Logger
	frames   atomic.Int64
}

// NewDevice creates a device. out may be nil.
func NewDevice(s beep.Streamer, format beep.Format, period time.Duration, out io.Writer, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Device{
		streamer: s,
		format:   format,
		period:   period,
		out:      out,
		log:      log.With("component", "audio-device"),
	}
}

// Run pulls until ctx is cancelled or the streamer ends. Write failures on
// the PCM output are returned.
func (d *Device) Run(ctx context.Context) error {
	n := d.format.SampleRate.N(d.period)
	if n <= 0 {
		return fmt.Errorf("audio: period %v too short at %d Hz", d.period, d.format.SampleRate)
	}
	samples := make([][2]float64, n)
	pcm := make([]byte, n*d.format.Width())

	d.log.Debug("audio device started", "rate", int(d.format.SampleRate), "period", d.period, "frames", n)
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		got, ok := d.streamer.Stream(samples)
		d.frames.Add(int64(got))
		if d.out != nil && got > 0 {
			p := pcm[:0:len(pcm)]
			for _, s := range samples[:got] {
				w := d.format.EncodeSigned(p[len(p):len(p)+d.format.Width()], s)
				p = p[:len(p)+w]
			}
			if _, err := d.out.Write(p); err != nil {
				return fmt.Errorf("audio: write pcm: %w", err)
			}
		}
		if !ok {
			return d.streamer.Err()
		}
	}
}

// Frames returns the number of sample frames consumed.
func (d *Device) Frames() int64 { return d.frames.Load() }
