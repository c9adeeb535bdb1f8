package player

import (
	"log/slog"
	"sync/atomic"
)

// Input polls the cancellation buttons.
type Input interface {
	Poll() uint32
}

// InputFunc adapts a function to Input.
type InputFunc func() uint32

// Poll implements Input.
func (f InputFunc) Poll() uint32 { return f() }

// ButtonLatch is an Input whose mask is set from other goroutines, such as
// an API handler pressing the cancel combination.
type ButtonLatch struct {
	mask atomic.Uint32
}

// Press ORs buttons into the latched mask.
func (b *ButtonLatch) Press(buttons uint32) { b.mask.Or(buttons) }

// Release clears the latched mask.
func (b *ButtonLatch) Release() { b.mask.Store(0) }

// Poll implements Input.
func (b *ButtonLatch) Poll() uint32 { return b.mask.Load() }

// Renderer is the display boundary. Upload receives a plane that is only
// valid for the duration of the call.
type Renderer interface {
	Upload(plane []byte, width, height int)
	Draw()
}

// AudioClock is the scheduler's view of the audio mixer.
type AudioClock interface {
	AudioTime() float64
	AudioInterval() float64
	Err() error
}

// Refiller is the scheduler's view of the ingest buffer.
type Refiller interface {
	NeedsRefill() bool
	Refill() int
	EOS() bool
}

// LogRenderer is a headless Renderer that counts calls and logs the
// geometry of the first upload and of any size change.
type LogRenderer struct {
	log     *slog.Logger
	uploads atomic.Int64
	draws   atomic.Int64
	bytes   atomic.Int64
	w, h    int
}

// NewLogRenderer creates a LogRenderer. If log is nil, slog.Default() is used.
func NewLogRenderer(log *slog.Logger) *LogRenderer {
	if log == nil {
		log = slog.Default()
	}
	return &LogRenderer{log: log.With("component", "renderer")}
}

// Upload implements Renderer.
func (r *LogRenderer) Upload(plane []byte, width, height int) {
	if width != r.w || height != r.h {
		r.log.Info("texture configured", "width", width, "height", height)
		r.w, r.h = width, height
	}
	r.uploads.Add(1)
	r.bytes.Add(int64(len(plane)))
}

// Draw implements Renderer.
func (r *LogRenderer) Draw() { r.draws.Add(1) }

// Uploads returns the number of uploads.
func (r *LogRenderer) Uploads() int64 { return r.uploads.Load() }

// Draws returns the number of draws.
func (r *LogRenderer) Draws() int64 { return r.draws.Load() }
