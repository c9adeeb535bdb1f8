package tsmux

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"

	"github.com/zsiec/reel/internal/media"
)

const ptsClock = 90000

// SynthConfig describes a generated test stream.
type SynthConfig struct {
	Width      int
	Height     int
	FrameRate  float64
	Duration   time.Duration
	Audio      bool
	SampleRate int
	Channels   int
	ToneHz     float64
	PlaneBytes int // opaque picture payload size per frame
}

// DefaultSynthConfig returns a short CIF stream with a stereo tone.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		Width:      352,
		Height:     288,
		FrameRate:  25,
		Duration:   5 * time.Second,
		Audio:      true,
		SampleRate: media.DefaultSampleRate,
		Channels:   media.DefaultChannels,
		ToneHz:     440,
		PlaneBytes: 1024,
	}
}

// Frames returns the number of video frames the config produces.
func (c SynthConfig) Frames() int {
	return int(c.Duration.Seconds() * c.FrameRate)
}

func (c SynthConfig) validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0 || c.Width > 4095 || c.Height > 4095:
		return errors.New("tsmux: picture size out of range")
	case c.FrameRate <= 0:
		return errors.New("tsmux: frame rate must be positive")
	case c.Audio && (c.SampleRate <= 0 || c.Channels <= 0):
		return errors.New("tsmux: audio needs a sample rate and channel count")
	}
	return nil
}

// WriteSynthetic writes a transport stream of numbered MPEG-1 access units
// and, when enabled, a sine tone in LPCM blocks interleaved by timestamp.
// Each access unit carries a sequence header so a reader can join anywhere.
func WriteSynthetic(w io.Writer, cfg SynthConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	m := NewMuxer(w, cfg.Audio, 25)
	hdr := media.SequenceHeader{Width: cfg.Width, Height: cfg.Height, FrameRate: cfg.FrameRate}

	var (
		samplesOut int
		phase      float64
		au         []byte
	)
	frames := cfg.Frames()
	for i := range frames {
		pts := int64(float64(i) * ptsClock / cfg.FrameRate)

		au = hdr.Append(au[:0])
		au = append(au, 0x00, 0x00, 0x01, media.StartCodePicture, byte(i>>2), byte(i<<6)|0x08)
		au = appendPattern(au, i, cfg.PlaneBytes)
		if err := m.WriteVideo(pts, au); err != nil {
			return err
		}

		if !cfg.Audio {
			continue
		}
		until := int(float64(i+1) * float64(cfg.SampleRate) / cfg.FrameRate)
		n := until - samplesOut
		if n <= 0 {
			continue
		}
		apts := int64(float64(samplesOut) * ptsClock / float64(cfg.SampleRate))
		var pcm []byte
		pcm, phase = tone(n, cfg.Channels, cfg.SampleRate, cfg.ToneHz, phase)
		if err := m.WriteAudio(apts, pcm); err != nil {
			return err
		}
		samplesOut = until
	}
	return nil
}

// appendPattern appends n bytes that vary per frame and never form a start
// code prefix.
func appendPattern(b []byte, frame, n int) []byte {
	for j := range n {
		b = append(b, byte(0x10+(frame+j)%0xE0))
	}
	return b
}

func tone(samples, channels, rate int, hz, phase float64) ([]byte, float64) {
	out := make([]byte, 0, samples*channels*media.BytesPerSample)
	step := 2 * math.Pi * hz / float64(rate)
	for range samples {
		v := int16(math.Sin(phase) * 0.25 * math.MaxInt16)
		for range channels {
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
		phase += step
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return out, phase
}
