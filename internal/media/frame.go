// Package media defines the decoded unit types that flow from the decode
// gateway through the frame queue and audio mixer to the render and audio
// output boundaries.
package media

// Playback defaults. The ingest arena and watermark mirror the constrained
// target: a 2 MiB ring refilled whenever it drops below a quarter full.
const (
	DefaultIngestCapacity    = 2 * 1024 * 1024
	DefaultWatermarkDivisor  = 4
	DefaultQueueDepth        = 20
	DefaultChunkSamples      = 1152
	DefaultSampleRate        = 44100
	DefaultChannels          = 2
	DefaultPullSize          = 8192
	DefaultRefreshRate       = 60
	BytesPerSample           = 2
	BytesPerSampleFrameS16LE = BytesPerSample * DefaultChannels
)

// VideoFrame is a decoded picture handle. Plane is an opaque pixel-plane
// reference owned by whoever produced the frame: frames published through a
// FrameSlot are valid only until the slot publishes again, frames copied into
// a queue slot are owned by the queue.
type VideoFrame struct {
	Time   float64 // presentation time in seconds from stream start
	Width  int
	Height int
	Plane  []byte

	slot *FrameSlot
	gen  uint64
}

// Stale reports whether the producer has overwritten the storage behind
// this handle since it was published.
func (f VideoFrame) Stale() bool {
	return f.slot != nil && f.slot.gen != f.gen
}

// Owned reports whether the frame does not alias a producer slot.
func (f VideoFrame) Owned() bool {
	return f.slot == nil
}

// CopyInto copies f into dst, reusing dst's plane storage when it is large
// enough. The result never aliases the producer's slot.
func (f VideoFrame) CopyInto(dst *VideoFrame) {
	plane := dst.Plane[:0]
	if cap(plane) < len(f.Plane) {
		plane = make([]byte, 0, len(f.Plane))
	}
	plane = append(plane, f.Plane...)
	*dst = VideoFrame{
		Time:   f.Time,
		Width:  f.Width,
		Height: f.Height,
		Plane:  plane,
	}
}

// FrameSlot is the single-frame store a decoder reuses across calls. Each
// Publish invalidates every handle returned by the previous one.
type FrameSlot struct {
	gen   uint64
	frame VideoFrame
}

// Publish stores the frame fields in the slot and returns a handle bound to
// the new generation.
func (s *FrameSlot) Publish(t float64, width, height int, plane []byte) VideoFrame {
	s.gen++
	s.frame = VideoFrame{
		Time:   t,
		Width:  width,
		Height: height,
		Plane:  plane,
		slot:   s,
		gen:    s.gen,
	}
	return s.frame
}

// Invalidate bumps the generation without publishing a frame, used when the
// slot's backing storage is about to be reused for something else.
func (s *FrameSlot) Invalidate() {
	s.gen++
}

// Generation returns the current slot generation.
func (s *FrameSlot) Generation() uint64 {
	return s.gen
}

// AudioChunk is one fixed-size block of interleaved signed 16-bit
// little-endian PCM. PCM is only valid until the next DecodeAudio call.
type AudioChunk struct {
	Time float64 // timestamp of the chunk in seconds
	PCM  []byte
}
