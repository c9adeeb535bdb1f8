package decode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/zsiec/reel/internal/ingest"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/mpegts"
)

const (
	// maxProbeStalls bounds the refills Probe attempts without progress.
	maxProbeStalls = 1000
	// maxPendingVideo caps access units buffered while pumping for audio.
	maxPendingVideo = 64
	// maxPendingPCM caps PCM buffered while pumping for video.
	maxPendingPCM = 1 << 20
)

// TSConfig carries the audio layout; LPCM in a private stream has no header
// describing it.
type TSConfig struct {
	SampleRate   int
	Channels     int
	ChunkSamples int
}

// DefaultTSConfig returns 44.1 kHz stereo in 1152-sample chunks.
func DefaultTSConfig() TSConfig {
	return TSConfig{
		SampleRate:   media.DefaultSampleRate,
		Channels:     media.DefaultChannels,
		ChunkSamples: media.DefaultChunkSamples,
	}
}

// ChunkBytes is the size of one audio chunk.
func (c TSConfig) ChunkBytes() int {
	return c.ChunkSamples * c.Channels * media.BytesPerSample
}

// Stats counts gateway output.
type Stats struct {
	VideoFrames     int64        `json:"videoFrames"`
	AudioChunks     int64        `json:"audioChunks"`
	DroppedVideo    int64        `json:"droppedVideo"`
	DroppedPCMBytes int64        `json:"droppedPcmBytes"`
	Demux           mpegts.Stats `json:"demux"`
}

// TSGateway decodes MPEG-TS held in an ingest buffer. Video access units
// are returned as opaque planes; LPCM audio is re-chunked to fixed-size
// chunks.
type TSGateway struct {
	mu     sync.Mutex
	buf    *ingest.Buffer
	dmx    *mpegts.Demuxer
	cfg    TSConfig
	log    *slog.Logger
	closed bool
	ended  bool // demuxer returned io.EOF

	videoPID, audioPID uint16
	hasVideo, hasAudio bool
	hdr                media.SequenceHeader

	video     []*mpegts.PES
	slot      media.FrameSlot
	plane     []byte
	lastVideo float64
	haveVideo bool

	pcm     []byte
	pcmTime float64
	chunk   []byte
	lastPTS int64
	basePTS int64
	havePTS bool
	stats   Stats
}

// NewTSGateway probes buf for the program layout and the first video
// sequence header, refilling as needed. Bytes demuxed while probing are
// kept for the first decode calls.
func NewTSGateway(buf *ingest.Buffer, cfg TSConfig, log *slog.Logger) (*TSGateway, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 || cfg.ChunkSamples <= 0 {
		return nil, fmt.Errorf("decode: invalid audio layout %+v", cfg)
	}
	g := &TSGateway{
		buf:   buf,
		dmx:   mpegts.NewDemuxer(buf),
		cfg:   cfg,
		log:   log.With("component", "ts-gateway"),
		chunk: make([]byte, cfg.ChunkBytes()),
	}
	if err := g.Probe(); err != nil {
		return nil, err
	}
	return g, nil
}

// Probe demuxes until the video sequence header is known.
func (g *TSGateway) Probe() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	stalls := 0
	for g.hdr.Width == 0 {
		if g.pump() {
			stalls = 0
			continue
		}
		if g.ended {
			return ErrNoVideo
		}
		if g.buf.Fill() == 0 {
			stalls++
			if stalls > maxProbeStalls {
				return fmt.Errorf("%w: source stalled during probe", ErrNoVideo)
			}
		}
	}
	g.log.Info("stream probed",
		"width", g.hdr.Width, "height", g.hdr.Height, "fps", g.hdr.FrameRate,
		"audio", g.hasAudio, "videoPID", g.videoPID, "audioPID", g.audioPID)
	return nil
}

// pump routes one demuxed unit. It returns false when the demuxer needs
// more bytes or has ended.
func (g *TSGateway) pump() bool {
	u, err := g.dmx.Next()
	if err != nil {
		g.ended = errors.Is(err, io.EOF)
		return false
	}
	switch {
	case u.PMT != nil:
		g.bindPMT(u.PMT)
	case u.PES == nil:
	case g.hasVideo && u.PID == g.videoPID:
		if g.hdr.Width == 0 {
			if h, ok := media.FindSequenceHeader(u.PES.Data); ok {
				g.hdr = h
			}
		}
		if len(g.video) >= maxPendingVideo {
			g.video = g.video[1:]
			g.stats.DroppedVideo++
		}
		g.video = append(g.video, u.PES)
	case g.hasAudio && u.PID == g.audioPID:
		g.appendPCM(u.PES)
	}
	return true
}

func (g *TSGateway) bindPMT(pmt *mpegts.PMT) {
	for _, es := range pmt.Streams {
		switch {
		case es.IsVideo() && !g.hasVideo:
			g.videoPID, g.hasVideo = es.PID, true
		case es.IsLPCM() && !g.hasAudio:
			g.audioPID, g.hasAudio = es.PID, true
		}
	}
}

// seconds maps a PES timestamp onto the stream clock starting at zero.
func (g *TSGateway) seconds(pts int64) float64 {
	if !g.havePTS {
		g.basePTS, g.lastPTS, g.havePTS = pts, pts, true
	}
	pts = mpegts.UnwrapPTS(g.lastPTS, pts)
	g.lastPTS = pts
	return mpegts.Seconds(pts - g.basePTS)
}

func (g *TSGateway) appendPCM(pes *mpegts.PES) {
	if len(g.pcm) == 0 && pes.HasPTS {
		g.pcmTime = g.seconds(pes.PTS)
	}
	g.pcm = append(g.pcm, pes.Data...)
	if over := len(g.pcm) - maxPendingPCM; over > 0 {
		frame := g.cfg.Channels * media.BytesPerSample
		over += (frame - over%frame) % frame
		g.pcm = g.pcm[over:]
		g.pcmTime += float64(over/frame) / float64(g.cfg.SampleRate)
		g.stats.DroppedPCMBytes += int64(over)
	}
}

// DecodeVideo implements Gateway.
func (g *TSGateway) DecodeVideo() (media.VideoFrame, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return media.VideoFrame{}, false
	}

	for len(g.video) == 0 {
		if !g.pump() {
			return media.VideoFrame{}, false
		}
	}
	pes := g.video[0]
	g.video[0] = nil
	g.video = g.video[1:]

	if h, ok := media.FindSequenceHeader(pes.Data); ok {
		g.hdr = h
	}

	t := g.lastVideo
	switch {
	case pes.HasPTS:
		t = g.seconds(pes.PTS)
	case pes.HasDTS:
		t = g.seconds(pes.DTS)
	case g.haveVideo:
		t += 1 / g.hdr.FrameRate
	}
	if g.haveVideo && t < g.lastVideo {
		t = g.lastVideo
	}
	g.lastVideo, g.haveVideo = t, true

	g.plane = append(g.plane[:0], pes.Data...)
	g.stats.VideoFrames++
	return g.slot.Publish(t, g.hdr.Width, g.hdr.Height, g.plane), true
}

// DecodeAudio implements Gateway. The final partial chunk at end of stream
// is padded with silence.
func (g *TSGateway) DecodeAudio() (media.AudioChunk, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || !g.hasAudio {
		return media.AudioChunk{}, false
	}

	size := len(g.chunk)
	for len(g.pcm) < size {
		if len(g.video) >= maxPendingVideo || !g.pump() {
			break
		}
	}
	switch {
	case len(g.pcm) >= size:
		copy(g.chunk, g.pcm)
	case len(g.pcm) > 0 && g.ended:
		n := copy(g.chunk, g.pcm)
		clear(g.chunk[n:])
	default:
		return media.AudioChunk{}, false
	}

	n := min(size, len(g.pcm))
	g.pcm = g.pcm[n:]
	if len(g.pcm) == 0 {
		g.pcm = nil
	}
	c := media.AudioChunk{Time: g.pcmTime, PCM: g.chunk}
	g.pcmTime += float64(g.cfg.ChunkSamples) / float64(g.cfg.SampleRate)
	g.stats.AudioChunks++
	return c, true
}

// HasAudio reports whether the program map lists an LPCM stream.
func (g *TSGateway) HasAudio() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasAudio
}

// Header returns the most recent video sequence header.
func (g *TSGateway) Header() media.SequenceHeader {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hdr
}

// Width implements Gateway.
func (g *TSGateway) Width() int { return g.Header().Width }

// Height implements Gateway.
func (g *TSGateway) Height() int { return g.Header().Height }

// Framerate implements Gateway.
func (g *TSGateway) Framerate() float64 { return g.Header().FrameRate }

// Samplerate implements Gateway.
func (g *TSGateway) Samplerate() int { return g.cfg.SampleRate }

// Stats returns a snapshot of gateway and demuxer counters.
func (g *TSGateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.Demux = g.dmx.Stats()
	return s
}

// Close releases decoder-owned storage. Later decode calls return false.
// The ingest buffer belongs to the caller.
func (g *TSGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.slot.Invalidate()
	g.video, g.pcm, g.plane, g.chunk = nil, nil, nil, nil
	return nil
}
