package media

import "math"

// MPEG-1/2 video start codes.
const (
	StartCodePicture  = 0x00
	StartCodeSequence = 0xB3
)

// frameRates maps MPEG-1/2 frame_rate_code to frames per second.
var frameRates = [...]float64{
	1: 24000.0 / 1001,
	2: 24,
	3: 25,
	4: 30000.0 / 1001,
	5: 30,
	6: 50,
	7: 60000.0 / 1001,
	8: 60,
}

// SequenceHeader holds the picture geometry and rate carried by an MPEG-1/2
// video sequence header.
type SequenceHeader struct {
	Width     int
	Height    int
	FrameRate float64
}

// FrameRateCode returns the frame_rate_code closest to fps.
func FrameRateCode(fps float64) byte {
	best, bestDiff := byte(1), math.Inf(1)
	for code := 1; code < len(frameRates); code++ {
		if d := math.Abs(frameRates[code] - fps); d < bestDiff {
			best, bestDiff = byte(code), d
		}
	}
	return best
}

// Append writes the header (start code included) to b. The bit rate and
// VBV fields carry placeholder values and no quantizer matrices are loaded.
func (h SequenceHeader) Append(b []byte) []byte {
	w, ht := uint32(h.Width)&0xFFF, uint32(h.Height)&0xFFF
	return append(b,
		0x00, 0x00, 0x01, StartCodeSequence,
		byte(w>>4), byte(w<<4)|byte(ht>>8), byte(ht),
		0x10|FrameRateCode(h.FrameRate), // square pixels
		0xFF, 0xFF, 0xE0,                // bit_rate all ones, marker
		0x18, // vbv_buffer_size, no matrices
	)
}

// FindSequenceHeader scans data for a sequence header and decodes it.
func FindSequenceHeader(data []byte) (SequenceHeader, bool) {
	for i := 0; i+8 <= len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 || data[i+3] != StartCodeSequence {
			continue
		}
		p := data[i+4:]
		code := int(p[3] & 0x0F)
		if code == 0 || code >= len(frameRates) {
			return SequenceHeader{}, false
		}
		h := SequenceHeader{
			Width:     int(p[0])<<4 | int(p[1]>>4),
			Height:    int(p[1]&0x0F)<<8 | int(p[2]),
			FrameRate: frameRates[code],
		}
		if h.Width == 0 || h.Height == 0 {
			return SequenceHeader{}, false
		}
		return h, true
	}
	return SequenceHeader{}, false
}
