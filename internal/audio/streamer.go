package audio

import (
	"encoding/binary"

	"github.com/gopxl/beep/v2"
)

// Puller is the pull-callback contract the output side consumes.
type Puller interface {
	Pull(size int) []byte
}

// Streamer adapts a Puller of interleaved s16le PCM to beep.Streamer.
// Frames the puller cannot supply are played as silence, so Stream always
// fills the request.
type Streamer struct {
	src      Puller
	channels int
	pullSize int
	buf      []byte
	pos      int
}

var _ beep.Streamer = (*Streamer)(nil)

// NewStreamer creates a Streamer pulling pullSize bytes at a time.
func NewStreamer(src Puller, channels, pullSize int) *Streamer {
	frame := channels * 2
	if pullSize < frame {
		pullSize = frame
	}
	return &Streamer{src: src, channels: channels, pullSize: pullSize - pullSize%frame}
}

// Stream implements beep.Streamer.
func (s *Streamer) Stream(samples [][2]float64) (int, bool) {
	frame := s.channels * 2
	for i := range samples {
		if len(s.buf)-s.pos < frame {
			s.buf, s.pos = s.src.Pull(s.pullSize), 0
			if len(s.buf) < frame {
				clear(samples[i:])
				return len(samples), true
			}
		}
		l := float64(int16(binary.LittleEndian.Uint16(s.buf[s.pos:]))) / (1 << 15)
		r := l
		if s.channels > 1 {
			r = float64(int16(binary.LittleEndian.Uint16(s.buf[s.pos+2:]))) / (1 << 15)
		}
		samples[i] = [2]float64{l, r}
		s.pos += frame
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (s *Streamer) Err() error { return nil }
