package player

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/zsiec/reel/internal/decode"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// SchedulerConfig tunes the presentation loop.
type SchedulerConfig struct {
	// CancelMask is the caller's cancel combination; zero disables it.
	CancelMask uint32
	// RefreshRate is the tick rate of Run in Hz.
	RefreshRate int
	// StallTicks is how many consecutive empty video decodes are tolerated
	// while the source has not reached end of stream. Zero stops on the
	// first empty decode.
	StallTicks int
}

// SchedulerStats counts scheduler work.
type SchedulerStats struct {
	Ticks         int64   `json:"ticks"`
	Decodes       int64   `json:"decodes"`
	Prefetched    int64   `json:"prefetched"`
	Uploads       int64   `json:"uploads"`
	Draws         int64   `json:"draws"`
	StaleRejected int64   `json:"staleRejected"`
	Refills       int64   `json:"refills"`
	Stalls        int64   `json:"stalls"`
	FrameTime     float64 `json:"frameTime"`
	VideoOnly     bool    `json:"videoOnly"`
}

// Scheduler decides once per tick whether to advance to a new frame,
// re-present the current one, or refill the ingest buffer. Tick must be
// called from a single goroutine; State, Reason, RequestCancel and Stats
// are safe from any goroutine.
type Scheduler struct {
	gw    decode.Gateway
	buf   Refiller
	q     *queue.FrameQueue
	clock AudioClock
	in    Input
	r     Renderer
	cfg   SchedulerConfig
	log   *slog.Logger
	now   func() time.Time

	state   atomic.Int32
	reason  atomic.Int32
	pending atomic.Int32 // reason requested from outside the tick

	current   media.VideoFrame
	have      bool
	decoded   bool
	stalled   int
	frameDur  float64
	wallStart time.Time

	ticks      atomic.Int64
	decodes    atomic.Int64
	prefetched atomic.Int64
	uploads    atomic.Int64
	draws      atomic.Int64
	stale      atomic.Int64
	refills    atomic.Int64
	stalls     atomic.Int64
	frameTime  atomic.Uint64 // float64 bits
	videoOnly  atomic.Bool

	lastReport time.Time
	lastTicks  int64
}

// NewScheduler wires a scheduler. q may have depth 1, which disables
// prefetching. If log is nil, slog.Default() is used.
func NewScheduler(gw decode.Gateway, buf Refiller, q *queue.FrameQueue, clock AudioClock, in Input, r Renderer, cfg SchedulerConfig, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = media.DefaultRefreshRate
	}
	s := &Scheduler{
		gw:    gw,
		buf:   buf,
		q:     q,
		clock: clock,
		in:    in,
		r:     r,
		cfg:   cfg,
		log:   log.With("component", "scheduler"),
		now:   time.Now,
	}
	if fps := gw.Framerate(); fps > 0 {
		s.frameDur = 1 / fps
	}
	return s
}

// State returns the current state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Reason returns the cancel reason, CancelNone unless cancelled.
func (s *Scheduler) Reason() CancelReason { return CancelReason(s.reason.Load()) }

// RequestCancel asks the scheduler to stop at its next tick.
func (s *Scheduler) RequestCancel(reason CancelReason) {
	if reason == CancelNone {
		return
	}
	s.pending.CompareAndSwap(int32(CancelNone), int32(reason))
}

// Tick runs one iteration of the presentation loop and returns the state
// after it.
func (s *Scheduler) Tick() State {
	if s.State() == Stopped {
		return Stopped
	}
	s.ticks.Add(1)

	reason := CancelReason(s.pending.Load())
	if polled := s.poll(); polled != CancelNone {
		reason = polled
	}
	if reason != CancelNone {
		s.reason.Store(int32(reason))
		s.state.Store(int32(CancelRequested))
		s.log.Info("cancel requested", "reason", reason.String())
	}
	if s.State() == CancelRequested {
		s.state.Store(int32(Stopped))
		return Stopped
	}

	if s.due() {
		f, ok := s.next()
		if !ok {
			if s.keepWaiting() {
				s.present()
				return Running
			}
			s.state.Store(int32(Stopped))
			s.log.Info("end of stream", "uploads", s.uploads.Load())
			return Stopped
		}
		s.stalled = 0
		s.current, s.have, s.decoded = f, true, true
		s.frameTime.Store(math.Float64bits(f.Time))
	}

	s.present()

	if s.buf != nil && s.buf.NeedsRefill() {
		s.buf.Refill()
		s.refills.Add(1)
	}

	s.prefetch()
	s.report()
	return Running
}

func (s *Scheduler) poll() CancelReason {
	if s.in == nil {
		return CancelNone
	}
	return classify(s.in.Poll(), s.cfg.CancelMask)
}

// due reports whether the clock has reached the current frame. Without an
// audio track video is paced from a wall clock started at the first
// decode.
func (s *Scheduler) due() bool {
	if !s.have {
		return true
	}
	if errors.Is(s.clock.Err(), decode.ErrNoAudioTrack) {
		if !s.videoOnly.Load() {
			s.videoOnly.Store(true)
			s.log.Info("no audio track, pacing video from wall clock")
		}
		playing := s.now().Sub(s.wallStart).Seconds()
		return s.current.Time-playing < s.frameDur
	}
	s.videoOnly.Store(false)
	return s.clock.AudioTime()-s.clock.AudioInterval() >= s.current.Time
}

// next returns the oldest prefetched frame, or decodes one.
func (s *Scheduler) next() (media.VideoFrame, bool) {
	if f, ok := s.q.Pop(); ok {
		return f, true
	}
	f, ok := s.gw.DecodeVideo()
	if ok {
		s.decodes.Add(1)
		if !s.have {
			s.wallStart = s.now()
		}
	}
	return f, ok
}

// keepWaiting reports whether an empty decode should be treated as a stall
// rather than end of stream. It refills so the next tick can retry.
func (s *Scheduler) keepWaiting() bool {
	if s.cfg.StallTicks <= 0 || s.buf == nil || s.buf.EOS() || s.stalled >= s.cfg.StallTicks {
		return false
	}
	s.stalled++
	s.stalls.Add(1)
	s.buf.Refill()
	s.refills.Add(1)
	return true
}

// present uploads a newly decoded frame once and draws every tick.
func (s *Scheduler) present() {
	if s.decoded {
		s.decoded = false
		if s.current.Stale() {
			s.stale.Add(1)
			s.log.Warn("stale frame handle rejected", "time", s.current.Time)
		} else {
			s.r.Upload(s.current.Plane, s.current.Width, s.current.Height)
			s.uploads.Add(1)
		}
	}
	if s.uploads.Load() > 0 {
		s.r.Draw()
		s.draws.Add(1)
	}
}

// prefetch decodes at most one frame ahead into the queue. An empty decode
// here is not end of stream.
func (s *Scheduler) prefetch() {
	if s.q.Cap() == 0 || s.q.Full() {
		return
	}
	f, ok := s.gw.DecodeVideo()
	if !ok {
		return
	}
	s.decodes.Add(1)
	if s.q.Push(f) {
		s.prefetched.Add(1)
	}
}

func (s *Scheduler) report() {
	now := s.now()
	if s.lastReport.IsZero() {
		s.lastReport, s.lastTicks = now, s.ticks.Load()
		return
	}
	elapsed := now.Sub(s.lastReport)
	if elapsed < time.Second {
		return
	}
	ticks := s.ticks.Load()
	attrs := []any{
		"tps", float64(ticks-s.lastTicks) / elapsed.Seconds(),
		"uploads", s.uploads.Load(),
		"refills", s.refills.Load(),
		"queued", s.q.Len(),
		"audioTime", s.clock.AudioTime(),
		"frameTime", s.current.Time,
	}
	if b, ok := s.buf.(interface{ Remaining() int }); ok {
		attrs = append(attrs, "remaining", b.Remaining())
	}
	s.log.Debug("playback", attrs...)
	s.lastReport, s.lastTicks = now, ticks
}

// Run ticks at the refresh rate until the scheduler stops. Cancelling ctx
// requests a user cancel, honored at the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.RefreshRate))
	defer ticker.Stop()

	for {
		if s.Tick() == Stopped {
			return nil
		}
		select {
		case <-ctx.Done():
			s.RequestCancel(CancelUser)
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Ticks:         s.ticks.Load(),
		Decodes:       s.decodes.Load(),
		Prefetched:    s.prefetched.Load(),
		Uploads:       s.uploads.Load(),
		Draws:         s.draws.Load(),
		StaleRejected: s.stale.Load(),
		Refills:       s.refills.Load(),
		Stalls:        s.stalls.Load(),
		FrameTime:     math.Float64frombits(s.frameTime.Load()),
		VideoOnly:     s.videoOnly.Load(),
	}
}
