package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reel/internal/audio"
	"github.com/zsiec/reel/internal/decode"
	"github.com/zsiec/reel/internal/ingest"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// Options configures a session.
type Options struct {
	Capacity         int
	WatermarkDivisor int
	QueueDepth       int
	PullSize         int
	DevicePeriod     time.Duration
	Audio            decode.TSConfig
	Scheduler        SchedulerConfig

	// Name labels the session in logs and snapshots, e.g. a stream key.
	Name string
	// Renderer defaults to a LogRenderer.
	Renderer Renderer
	// Input is polled in addition to the session's own button latch.
	Input Input
	// PCMOut receives the device's encoded output when set.
	PCMOut io.Writer
	// Live stages source reads on their own goroutine so a stalled
	// publisher never blocks a tick.
	Live bool
	// NoDevice discards audio output. Run still pulls the mixer at the
	// device period so the audio clock keeps pacing video.
	NoDevice bool
	Log      *slog.Logger
}

// DefaultOptions returns the constrained-target defaults.
func DefaultOptions() Options {
	return Options{
		Capacity:         media.DefaultIngestCapacity,
		WatermarkDivisor: media.DefaultWatermarkDivisor,
		QueueDepth:       media.DefaultQueueDepth,
		PullSize:         media.DefaultPullSize,
		DevicePeriod:     audio.DefaultPeriod,
		Audio:            decode.DefaultTSConfig(),
		Scheduler:        SchedulerConfig{RefreshRate: media.DefaultRefreshRate},
	}
}

// Snapshot is a point-in-time view of a session, suitable for JSON.
type Snapshot struct {
	ID        string              `json:"id"`
	Name      string              `json:"name,omitempty"`
	StartedAt time.Time           `json:"startedAt"`
	UptimeMs  int64               `json:"uptimeMs"`
	State     string              `json:"state"`
	Reason    string              `json:"cancelReason"`
	Width     int                 `json:"width"`
	Height    int                 `json:"height"`
	Framerate float64             `json:"framerate"`
	HasAudio  bool                `json:"hasAudio"`
	Scheduler SchedulerStats      `json:"scheduler"`
	Ingest    ingest.BufferStats  `json:"ingest"`
	Queue     queue.Stats         `json:"queue"`
	Audio     audio.Stats         `json:"audio"`
	Decode    *decode.Stats       `json:"decode,omitempty"`
	Source    *ingest.SourceStats `json:"source,omitempty"`
}

// Session is one playback of one stream. All state that a playback needs
// lives here so any number of sessions can run side by side.
type Session struct {
	ID        string
	Name      string
	StartedAt time.Time

	log     *slog.Logger
	src     io.Reader
	buf     *ingest.Buffer
	gw      decode.Gateway
	q       *queue.FrameQueue
	mixer   *audio.Mixer
	sched   *Scheduler
	latch   ButtonLatch
	opts    Options
	closers []func() error

	closeOnce sync.Once
	closeErr  error
}

// Open builds a session over src: ingest buffer, TS decode gateway, frame
// queue, audio mixer and scheduler, in that order. On failure everything
// acquired so far is released in reverse order and src is closed if it is
// an io.Closer.
func Open(src io.Reader, opts Options) (*Session, error) {
	return open(src, opts, func(buf *ingest.Buffer, log *slog.Logger) (decode.Gateway, error) {
		return decode.NewTSGateway(buf, opts.Audio, log)
	})
}

type gatewayFactory func(buf *ingest.Buffer, log *slog.Logger) (decode.Gateway, error)

func open(src io.Reader, opts Options, newGateway gatewayFactory) (*Session, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.WatermarkDivisor <= 0 {
		opts.WatermarkDivisor = media.DefaultWatermarkDivisor
	}
	if opts.PullSize <= 0 {
		opts.PullSize = media.DefaultPullSize
	}
	id := uuid.NewString()
	log := opts.Log.With("session", id)
	if opts.Name != "" {
		log = log.With("stream", opts.Name)
	}
	s := &Session{ID: id, Name: opts.Name, StartedAt: time.Now(), log: log, src: src, opts: opts}

	input := src
	if opts.Live {
		input = ingest.NewStagedReader(src, opts.Capacity/opts.WatermarkDivisor)
	}
	fail := func(err error) (*Session, error) {
		s.unwind()
		if c, ok := input.(io.Closer); ok && s.buf == nil {
			c.Close()
		}
		return nil, err
	}

	buf, err := ingest.OpenWithWatermark(input, opts.Capacity, opts.Capacity/opts.WatermarkDivisor, log)
	if err != nil {
		return fail(fmt.Errorf("player: open ingest: %w", err))
	}
	s.buf = buf
	s.closers = append(s.closers, buf.Close)

	gw, err := newGateway(buf, log)
	if err != nil {
		return fail(fmt.Errorf("player: open decoder: %w", err))
	}
	s.gw = gw
	s.closers = append(s.closers, gw.Close)

	s.q, err = queue.New(opts.QueueDepth)
	if err != nil {
		return fail(fmt.Errorf("player: %w", err))
	}

	s.mixer = audio.NewMixer(gw, opts.Audio.ChunkBytes(), audio.Interval(opts.Audio.ChunkSamples, gw.Samplerate()), log)

	r := opts.Renderer
	if r == nil {
		r = NewLogRenderer(log)
	}
	s.sched = NewScheduler(gw, buf, s.q, s.mixer, s.input(), r, opts.Scheduler, log)

	log.Info("session opened",
		"width", gw.Width(), "height", gw.Height(), "fps", gw.Framerate(),
		"samplerate", gw.Samplerate(), "queueDepth", opts.QueueDepth)
	return s, nil
}

// input merges the caller's Input with the session latch.
func (s *Session) input() Input {
	if s.opts.Input == nil {
		return &s.latch
	}
	return InputFunc(func() uint32 {
		if m := s.latch.Poll(); m != 0 {
			return m
		}
		return s.opts.Input.Poll()
	})
}

// Run plays until the stream ends or playback is cancelled. Cancelling
// ctx requests a user cancel.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	audioCtx, stopAudio := context.WithCancel(gctx)
	defer stopAudio()

	out := s.opts.PCMOut
	if s.opts.NoDevice {
		out = nil
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(s.gw.Samplerate()),
		NumChannels: 2,
		Precision:   2,
	}
	dev := audio.NewDevice(audio.NewStreamer(s.mixer, s.opts.Audio.Channels, s.opts.PullSize),
		format, s.opts.DevicePeriod, out, s.log)
	g.Go(func() error {
		return dev.Run(audioCtx)
	})

	g.Go(func() error {
		defer stopAudio()
		return s.sched.Run(gctx)
	})

	err := g.Wait()
	s.log.Info("session finished",
		"state", s.sched.State().String(), "reason", s.sched.Reason().String(),
		"uploads", s.sched.Stats().Uploads)
	return err
}

// Tick runs one scheduler iteration; used when the caller owns the loop.
func (s *Session) Tick() State { return s.sched.Tick() }

// Mixer exposes the pull callback for callers driving audio themselves.
func (s *Session) Mixer() *audio.Mixer { return s.mixer }

// RequestCancel stops playback at the next tick with the given reason.
func (s *Session) RequestCancel(reason CancelReason) {
	s.sched.RequestCancel(reason)
}

// Press latches buttons as if pressed on the controller.
func (s *Session) Press(buttons uint32) { s.latch.Press(buttons) }

// State returns the scheduler state.
func (s *Session) State() State { return s.sched.State() }

// Reason returns the cancel reason.
func (s *Session) Reason() CancelReason { return s.sched.Reason() }

// Snapshot collects stats from every component.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
		UptimeMs:  time.Since(s.StartedAt).Milliseconds(),
		State:     s.sched.State().String(),
		Reason:    s.sched.Reason().String(),
		Width:     s.gw.Width(),
		Height:    s.gw.Height(),
		Framerate: s.gw.Framerate(),
		Scheduler: s.sched.Stats(),
		Ingest:    s.buf.Stats(),
		Queue:     s.q.Stats(),
		Audio:     s.mixer.Stats(),
	}
	if a, ok := s.gw.(interface{ HasAudio() bool }); ok {
		snap.HasAudio = a.HasAudio()
	}
	if ts, ok := s.gw.(interface{ Stats() decode.Stats }); ok {
		st := ts.Stats()
		snap.Decode = &st
	}
	if m, ok := s.src.(interface{ SourceStats() ingest.SourceStats }); ok {
		st := m.SourceStats()
		snap.Source = &st
	}
	return snap
}

// Close releases every component in reverse order of acquisition.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.unwind()
		s.log.Debug("session closed")
	})
	return s.closeErr
}

func (s *Session) unwind() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
