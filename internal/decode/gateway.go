// Package decode is the boundary between the playback core and whatever
// turns buffered bytes into pictures and PCM. The core sees only Gateway
// return values and the timestamps they carry.
package decode

import (
	"errors"

	"github.com/zsiec/reel/internal/media"
)

var (
	// ErrNoAudioTrack is reported when the first audio pull finds no
	// samples. Video-only playback continues.
	ErrNoAudioTrack = errors.New("decode: no audio track")
	// ErrNoVideo means the stream carries no decodable video.
	ErrNoVideo = errors.New("decode: no video stream found")
)

// Gateway produces decoded units on demand.
//
// DecodeVideo returns false when no complete frame can be produced from the
// bytes buffered so far; that is flow control, not necessarily end of
// stream. The returned handle is valid until the next DecodeVideo call.
//
// DecodeAudio returns one fixed-size chunk, or false when no further audio
// is available from buffered bytes. The chunk's PCM is valid until the next
// DecodeAudio call.
//
// DecodeVideo and DecodeAudio may be called from different goroutines.
type Gateway interface {
	DecodeVideo() (media.VideoFrame, bool)
	DecodeAudio() (media.AudioChunk, bool)
	Width() int
	Height() int
	Framerate() float64
	Samplerate() int
	Close() error
}
