package media

import (
	"math"
	"testing"
)

func TestSequenceHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hdr  SequenceHeader
	}{
		{"cif 25", SequenceHeader{Width: 352, Height: 288, FrameRate: 25}},
		{"hd 30", SequenceHeader{Width: 1280, Height: 720, FrameRate: 30}},
		{"ntsc", SequenceHeader{Width: 720, Height: 480, FrameRate: 30000.0 / 1001}},
		{"tiny 60", SequenceHeader{Width: 16, Height: 16, FrameRate: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := append([]byte{0xAA, 0x00}, tt.hdr.Append(nil)...)
			got, ok := FindSequenceHeader(b)
			if !ok {
				t.Fatal("header not found")
			}
			if got.Width != tt.hdr.Width || got.Height != tt.hdr.Height {
				t.Errorf("size = %dx%d, want %dx%d", got.Width, got.Height, tt.hdr.Width, tt.hdr.Height)
			}
			if math.Abs(got.FrameRate-tt.hdr.FrameRate) > 1e-9 {
				t.Errorf("FrameRate = %v, want %v", got.FrameRate, tt.hdr.FrameRate)
			}
		})
	}
}

func TestFindSequenceHeaderMissing(t *testing.T) {
	t.Parallel()
	if _, ok := FindSequenceHeader([]byte{0, 0, 1, 0, 1, 2, 3, 4, 5, 6}); ok {
		t.Error("expected no header")
	}
}

func TestFrameRateCodeNearest(t *testing.T) {
	t.Parallel()
	if got := FrameRateCode(29.97); got != 4 {
		t.Errorf("FrameRateCode(29.97) = %d, want 4", got)
	}
	if got := FrameRateCode(24); got != 2 {
		t.Errorf("FrameRateCode(24) = %d, want 2", got)
	}
}
