// Package audio reconciles fixed-size decoded PCM chunks with the audio
// output's arbitrarily sized pull requests and owns the audio clock the
// presentation scheduler paces video against.
package audio

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/zsiec/reel/internal/decode"
	"github.com/zsiec/reel/internal/media"
)

// ChunkSource yields fixed-size PCM chunks. decode.Gateway satisfies it.
type ChunkSource interface {
	DecodeAudio() (media.AudioChunk, bool)
}

// Stats counts mixer activity.
type Stats struct {
	Pulls          int64   `json:"pulls"`
	Chunks         int64   `json:"chunks"`
	BytesOut       int64   `json:"bytesOut"`
	Underruns      int64   `json:"underruns"`
	ShortfallBytes int64   `json:"shortfallBytes"`
	Leftover       int     `json:"leftover"`
	AudioTime      float64 `json:"audioTime"`
	HasAudio       bool    `json:"hasAudio"`
}

// Mixer serves pull requests from decoded chunks, carrying the unconsumed
// tail of the last chunk over to the next pull. Pull is meant for a single
// audio goroutine; AudioTime may be read from any goroutine.
type Mixer struct {
	mu       sync.Mutex
	src      ChunkSource
	log      *slog.Logger
	out      []byte
	left     []byte // always shorter than one chunk after a full pull
	interval float64
	started  bool
	hasAudio bool

	clock     atomic.Uint64 // float64 bits of the audio clock
	pulls     atomic.Int64
	chunks    atomic.Int64
	bytesOut  atomic.Int64
	underruns atomic.Int64
	shortfall atomic.Int64
}

// NewMixer creates a mixer over src. interval is the duration of one
// chunk in seconds; chunkBytes sizes the carry-over region.
func NewMixer(src ChunkSource, chunkBytes int, interval float64, log *slog.Logger) *Mixer {
	if log == nil {
		log = slog.Default()
	}
	return &Mixer{
		src:      src,
		log:      log.With("component", "audio-mixer"),
		out:      make([]byte, 0, media.DefaultPullSize+chunkBytes),
		left:     make([]byte, 0, chunkBytes),
		interval: interval,
	}
}

// Interval returns the duration of one decoded chunk for a stream.
func Interval(chunkSamples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(chunkSamples) / float64(sampleRate)
}

// Pull returns up to size bytes of interleaved PCM: leftover first, then
// freshly decoded chunks. When decode runs dry the clock advances by one
// interval and the result is short; the caller plays the gap as silence.
// The returned slice is valid until the next Pull.
func (m *Mixer) Pull(size int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls.Add(1)
	size = max(size, 0)

	out := m.out[:0]
	n := min(len(m.left), size)
	out = append(out, m.left[:n]...)
	m.left = m.left[:copy(m.left, m.left[n:])]

	for len(out) < size {
		c, ok := m.src.DecodeAudio()
		if !ok {
			if !m.started {
				m.log.Info("no audio at stream start, continuing video-only")
			}
			m.started = true
			m.advance(m.AudioTime() + m.interval)
			break
		}
		if !m.hasAudio && m.started {
			m.log.Info("audio arrived after start")
		}
		m.started, m.hasAudio = true, true
		m.chunks.Add(1)
		out = append(out, c.PCM...)
		m.advance(c.Time)
	}

	if len(out) > size {
		m.left = append(m.left[:0], out[size:]...)
		out = out[:size]
	}
	if len(out) < size {
		m.underruns.Add(1)
		m.shortfall.Add(int64(size - len(out)))
	}
	m.out = out
	m.bytesOut.Add(int64(len(out)))
	return out
}

// advance moves the clock forward only.
func (m *Mixer) advance(t float64) {
	if t > m.AudioTime() {
		m.clock.Store(math.Float64bits(t))
	}
}

// AudioTime returns the decoder-side audio clock in seconds.
func (m *Mixer) AudioTime() float64 {
	return math.Float64frombits(m.clock.Load())
}

// AudioInterval returns the duration of one chunk in seconds.
func (m *Mixer) AudioInterval() float64 {
	return m.interval
}

// HasAudio reports whether any chunk has been decoded.
func (m *Mixer) HasAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasAudio
}

// Err returns decode.ErrNoAudioTrack once a pull has found no audio and no
// chunk has ever been decoded.
func (m *Mixer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started && !m.hasAudio {
		return decode.ErrNoAudioTrack
	}
	return nil
}

// Stats returns a snapshot of mixer counters.
func (m *Mixer) Stats() Stats {
	m.mu.Lock()
	left, has := len(m.left), m.hasAudio
	m.mu.Unlock()
	return Stats{
		Pulls:          m.pulls.Load(),
		Chunks:         m.chunks.Load(),
		BytesOut:       m.bytesOut.Load(),
		Underruns:      m.underruns.Load(),
		ShortfallBytes: m.shortfall.Load(),
		Leftover:       left,
		AudioTime:      m.AudioTime(),
		HasAudio:       has,
	}
}
