package player

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/zsiec/reel/internal/decode"
	"github.com/zsiec/reel/internal/ingest"
	"github.com/zsiec/reel/internal/media"
	"github.com/zsiec/reel/internal/queue"
)

// scriptedGateway yields frames numbered from zero at fps, then nothing.
type scriptedGateway struct {
	frames  int
	fps     float64
	decoded int
	calls   int
	slot    media.FrameSlot
	plane   []byte
}

func (g *scriptedGateway) DecodeVideo() (media.VideoFrame, bool) {
	g.calls++
	if g.decoded >= g.frames {
		return media.VideoFrame{}, false
	}
	g.plane = append(g.plane[:0], byte(g.decoded), 0xAA)
	f := g.slot.Publish(float64(g.decoded)/g.fps, 4, 4, g.plane)
	g.decoded++
	return f, true
}

func (g *scriptedGateway) DecodeAudio() (media.AudioChunk, bool) { return media.AudioChunk{}, false }
func (g *scriptedGateway) Width() int                            { return 4 }
func (g *scriptedGateway) Height() int                           { return 4 }
func (g *scriptedGateway) Framerate() float64                    { return g.fps }
func (g *scriptedGateway) Samplerate() int                       { return media.DefaultSampleRate }
func (g *scriptedGateway) Close() error                          { return nil }

type fakeClock struct {
	t, interval float64
	err         error
}

func (c *fakeClock) AudioTime() float64     { return c.t }
func (c *fakeClock) AudioInterval() float64 { return c.interval }
func (c *fakeClock) Err() error             { return c.err }

// recordingRenderer keeps the first plane byte of every upload.
type recordingRenderer struct {
	uploads []byte
	draws   int
}

func (r *recordingRenderer) Upload(plane []byte, width, height int) {
	r.uploads = append(r.uploads, plane[0])
}

func (r *recordingRenderer) Draw() { r.draws++ }

type fakeRefiller struct {
	needs   bool
	eos     bool
	refills int
}

func (f *fakeRefiller) NeedsRefill() bool { return f.needs }
func (f *fakeRefiller) Refill() int       { f.refills++; return 0 }
func (f *fakeRefiller) EOS() bool         { return f.eos }

type scriptedInput struct {
	masks []uint32
}

func (in *scriptedInput) Poll() uint32 {
	if len(in.masks) == 0 {
		return 0
	}
	m := in.masks[0]
	in.masks = in.masks[1:]
	return m
}

type harness struct {
	gw    *scriptedGateway
	clock *fakeClock
	r     *recordingRenderer
	buf   *fakeRefiller
	in    *scriptedInput
	s     *Scheduler
}

func newHarness(t *testing.T, frames, depth int, cfg SchedulerConfig) *harness {
	t.Helper()
	q, err := queue.New(depth)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		gw:    &scriptedGateway{frames: frames, fps: 25},
		clock: &fakeClock{t: 1e9, interval: 1152.0 / 44100},
		r:     &recordingRenderer{},
		buf:   &fakeRefiller{},
		in:    &scriptedInput{},
	}
	h.s = NewScheduler(h.gw, h.buf, q, h.clock, h.in, h.r, cfg, nil)
	return h
}

func TestSchedulerStopsAfterLastFrame(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 30, 1, SchedulerConfig{})
	ticks := 0
	for h.s.Tick() != Stopped {
		ticks++
		if ticks > 100 {
			t.Fatal("scheduler never stopped")
		}
	}

	if h.gw.calls != 31 {
		t.Errorf("DecodeVideo calls = %d, want 31", h.gw.calls)
	}
	if len(h.r.uploads) != 30 {
		t.Errorf("uploads = %d, want 30", len(h.r.uploads))
	}
	for i, b := range h.r.uploads {
		if int(b) != i {
			t.Fatalf("upload %d was frame %d", i, b)
		}
	}
	if h.s.State() != Stopped || h.s.Reason() != CancelNone {
		t.Errorf("state %v reason %v, want stopped/none", h.s.State(), h.s.Reason())
	}
	if h.s.Tick() != Stopped || h.gw.calls != 31 {
		t.Error("ticking a stopped scheduler did work")
	}
}

func TestSchedulerUploadsOncePerFrame(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, 1, SchedulerConfig{})
	h.clock.t = 0

	for range 6 {
		h.s.Tick()
	}
	if h.gw.calls != 1 || len(h.r.uploads) != 1 {
		t.Fatalf("calls=%d uploads=%d, want 1/1 while the clock is behind", h.gw.calls, len(h.r.uploads))
	}
	if h.r.draws != 6 {
		t.Errorf("draws = %d, want 6", h.r.draws)
	}

	// Frame 0 is at t=0; the clock catches up once it passes one interval.
	h.clock.t = h.clock.interval
	h.s.Tick()
	h.s.Tick()
	if len(h.r.uploads) != 2 {
		t.Errorf("uploads = %d, want 2", len(h.r.uploads))
	}
	st := h.s.Stats()
	if st.Uploads != 2 || st.Decodes != 2 || st.Draws != 8 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestSchedulerResetCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100, 1, SchedulerConfig{CancelMask: 0x0008})
	h.buf.needs = true
	h.in.masks = []uint32{0, 0, 0, ResetMask}

	for range 3 {
		if h.s.Tick() != Running {
			t.Fatal("stopped early")
		}
	}
	calls, refills := h.gw.calls, h.buf.refills

	if got := h.s.Tick(); got != Stopped {
		t.Fatalf("Tick = %v, want stopped", got)
	}
	if h.s.Reason() != CancelReset {
		t.Errorf("Reason = %v, want reset", h.s.Reason())
	}
	if h.gw.calls != calls || h.buf.refills != refills {
		t.Errorf("decode/refill ran on the cancel tick: calls %d->%d refills %d->%d",
			calls, h.gw.calls, refills, h.buf.refills)
	}
}

func TestSchedulerUserCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100, 1, SchedulerConfig{CancelMask: 0x0008})
	h.in.masks = []uint32{0, 0x0018}
	h.s.Tick()
	if got := h.s.Tick(); got != Stopped || h.s.Reason() != CancelUser {
		t.Errorf("Tick = %v reason %v, want stopped/user", got, h.s.Reason())
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mask, combo uint32
		want        CancelReason
	}{
		{"idle", 0, 0x0008, CancelNone},
		{"combo held", 0x0008, 0x0008, CancelUser},
		{"combo plus extra", 0x00F8, 0x0018, CancelUser},
		{"partial combo", 0x0008, 0x0018, CancelNone},
		{"combo disabled", 0xFFFF, 0, CancelNone},
		{"reset exact", ResetMask, 0, CancelReset},
		{"reset wins over combo", ResetMask, 0x0006, CancelReset},
		{"reset superset is not reset", ResetMask | 1, 0, CancelNone},
		{"reset superset with combo", ResetMask | 1, 0x0001, CancelUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.mask, tt.combo); got != tt.want {
				t.Errorf("classify(%#x, %#x) = %v, want %v", tt.mask, tt.combo, got, tt.want)
			}
		})
	}
}

func TestSchedulerRequestCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100, 1, SchedulerConfig{})
	h.s.Tick()
	calls := h.gw.calls

	h.s.RequestCancel(CancelUser)
	h.s.RequestCancel(CancelReset) // first request wins
	if h.s.Tick() != Stopped {
		t.Fatal("did not stop")
	}
	if h.s.Reason() != CancelUser {
		t.Errorf("Reason = %v, want user", h.s.Reason())
	}
	if h.gw.calls != calls {
		t.Error("decode ran after cancel")
	}
}

func TestSchedulerRunHonorsContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1000, 1, SchedulerConfig{RefreshRate: 1000})
	h.clock.t = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.s.State() != Stopped || h.s.Reason() != CancelUser {
		t.Errorf("state %v reason %v", h.s.State(), h.s.Reason())
	}
}

func TestSchedulerRefillRequestsFreeSpace(t *testing.T) {
	t.Parallel()

	src := &recordingSource{chunks: [][]byte{make([]byte, 1024)}}
	buf, err := ingest.OpenWithWatermark(src, 1024, 256, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Close()
	buf.Discard(824)
	if buf.Remaining() != 200 {
		t.Fatalf("Remaining = %d, want 200", buf.Remaining())
	}

	q, _ := queue.New(1)
	gw := &scriptedGateway{frames: 5, fps: 25}
	s := NewScheduler(gw, buf, q, &fakeClock{t: 1e9}, nil, &recordingRenderer{}, SchedulerConfig{}, nil)
	s.Tick()

	if len(src.requests) != 2 {
		t.Fatalf("source reads = %d, want initial fill plus one refill", len(src.requests))
	}
	if src.requests[1] != 824 {
		t.Errorf("refill requested %d bytes, want 824", src.requests[1])
	}
	if st := s.Stats(); st.Refills != 1 {
		t.Errorf("Refills = %d, want 1", st.Refills)
	}
}

// recordingSource serves scripted chunks and records each request size.
type recordingSource struct {
	chunks   [][]byte
	requests []int
}

func (r *recordingSource) Read(p []byte) (int, error) {
	r.requests = append(r.requests, len(p))
	if len(r.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

var _ io.Reader = (*recordingSource)(nil)

func TestSchedulerPrefetchPreservesOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 12, 4, SchedulerConfig{})
	h.clock.t = 0

	h.s.Tick() // decode frame 0, prefetch frame 1
	h.s.Tick() // prefetch frame 2
	h.s.Tick() // prefetch frame 3, queue full
	h.s.Tick()
	if h.gw.calls != 4 {
		t.Fatalf("DecodeVideo calls = %d, want 4 with a full queue", h.gw.calls)
	}
	if st := h.s.Stats(); st.Prefetched != 3 {
		t.Errorf("Prefetched = %d, want 3", st.Prefetched)
	}

	h.clock.t = 1e9
	for h.s.Tick() != Stopped {
	}
	if len(h.r.uploads) != 12 {
		t.Fatalf("uploads = %d, want 12", len(h.r.uploads))
	}
	for i, b := range h.r.uploads {
		if int(b) != i {
			t.Fatalf("upload %d was frame %d", i, b)
		}
	}
}

func TestSchedulerPrefetchEmptyIsNotEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, 4, SchedulerConfig{})
	h.clock.t = 0
	h.s.Tick()
	if got := h.s.Tick(); got != Running {
		t.Errorf("Tick = %v after an empty prefetch, want running", got)
	}
}

// doublePublisher overwrites its slot after handing out a frame.
type doublePublisher struct {
	scriptedGateway
}

func (d *doublePublisher) DecodeVideo() (media.VideoFrame, bool) {
	f, ok := d.scriptedGateway.DecodeVideo()
	if ok {
		d.slot.Invalidate()
	}
	return f, ok
}

func TestSchedulerRejectsStaleHandle(t *testing.T) {
	t.Parallel()

	q, _ := queue.New(1)
	gw := &doublePublisher{scriptedGateway{frames: 3, fps: 25}}
	r := &recordingRenderer{}
	s := NewScheduler(gw, nil, q, &fakeClock{t: 1e9}, nil, r, SchedulerConfig{}, nil)

	s.Tick()
	if len(r.uploads) != 0 {
		t.Error("stale frame was uploaded")
	}
	if st := s.Stats(); st.StaleRejected != 1 {
		t.Errorf("StaleRejected = %d, want 1", st.StaleRejected)
	}
}

func TestSchedulerWallClockFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10, 1, SchedulerConfig{})
	h.clock.err = decode.ErrNoAudioTrack
	now := time.Unix(1000, 0)
	h.s.now = func() time.Time { return now }

	h.s.Tick() // frame 0 starts the wall clock
	h.s.Tick() // frame 1 is within one frame of t=0
	h.s.Tick()
	if len(h.r.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2 at t=0", len(h.r.uploads))
	}

	now = now.Add(10 * time.Millisecond)
	h.s.Tick()
	if len(h.r.uploads) != 3 {
		t.Errorf("uploads = %d, want 3 at t=10ms", len(h.r.uploads))
	}
	if !h.s.Stats().VideoOnly {
		t.Error("VideoOnly = false")
	}
}

func TestSchedulerStallTolerance(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, 1, SchedulerConfig{StallTicks: 3})
	h.s.Tick()
	for i := range 3 {
		if got := h.s.Tick(); got != Running {
			t.Fatalf("stall tick %d: %v, want running", i, got)
		}
	}
	if got := h.s.Tick(); got != Stopped {
		t.Errorf("Tick = %v after the stall budget, want stopped", got)
	}
	if h.buf.refills != 3 {
		t.Errorf("refills = %d, want 3", h.buf.refills)
	}
}

func TestSchedulerStallEndsAtEOS(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, 1, SchedulerConfig{StallTicks: 3})
	h.buf.eos = true
	h.s.Tick()
	if got := h.s.Tick(); got != Stopped {
		t.Errorf("Tick = %v at end of stream, want stopped", got)
	}
}
