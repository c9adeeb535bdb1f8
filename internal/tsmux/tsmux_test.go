package tsmux

import (
	"bytes"
	"testing"
	"time"

	"github.com/zsiec/reel/internal/mpegts"
)

func TestPacketize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		size    int
		packets int
	}{
		{"exact", 184, 1},
		{"one byte", 1, 1},
		{"spill", 185, 2},
		{"two full", 368, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0xAB}, tt.size)
			var cc byte = 14
			out := Packetize(data, PIDVideo, &cc)
			if len(out) != tt.packets*PacketSize {
				t.Fatalf("got %d bytes, want %d packets", len(out), tt.packets)
			}
			if cc != byte(14+tt.packets)&0x0F {
				t.Errorf("cc = %d after %d packets", cc, tt.packets)
			}
			var payload []byte
			for i := 0; i < len(out); i += PacketSize {
				pkt := out[i : i+PacketSize]
				if pkt[0] != 0x47 {
					t.Fatalf("packet %d: sync byte %#x", i/PacketSize, pkt[0])
				}
				if pusi := pkt[1]&0x40 != 0; pusi != (i == 0) {
					t.Errorf("packet %d: PUSI = %v", i/PacketSize, pusi)
				}
				start := 4
				if pkt[3]&0x20 != 0 {
					start += 1 + int(pkt[4])
				}
				payload = append(payload, pkt[start:]...)
			}
			if !bytes.Equal(payload, data) {
				t.Error("payload does not round trip through stuffing")
			}
		})
	}
}

func TestSectionsCarryValidCRC(t *testing.T) {
	t.Parallel()
	pat := PATSection(1, PIDPMT)
	pmt := PMTSection(1, []Stream{
		{PID: PIDVideo, StreamType: mpegts.StreamTypeMPEG1Video},
		{PID: PIDAudio, StreamType: mpegts.StreamTypeLPCM},
	})
	for name, s := range map[string][]byte{"PAT": pat, "PMT": pmt} {
		if mpegts.CRC32(s) != 0 {
			t.Errorf("%s: CRC over section and checksum is not zero", name)
		}
		if got := int(s[1]&0x0F)<<8 | int(s[2]); got != len(s)-3 {
			t.Errorf("%s: section_length %d, want %d", name, got, len(s)-3)
		}
	}
}

func TestMuxerRepeatsPSI(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	m := NewMuxer(&buf, false, 2)
	for i := 0; i < 5; i++ {
		if err := m.WriteVideo(int64(i)*3600, []byte{0, 0, 1, 0, byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	pats := 0
	data := buf.Bytes()
	for i := 0; i+PacketSize <= len(data); i += PacketSize {
		if pid := uint16(data[i+1]&0x1F)<<8 | uint16(data[i+2]); pid == 0 {
			pats++
		}
	}
	// Before frames 0, 2 and 4.
	if pats != 3 {
		t.Errorf("PAT count = %d, want 3", pats)
	}
}

func TestWriteSyntheticValidates(t *testing.T) {
	t.Parallel()
	for name, mutate := range map[string]func(*SynthConfig){
		"zero width":   func(c *SynthConfig) { c.Width = 0 },
		"huge height":  func(c *SynthConfig) { c.Height = 5000 },
		"no framerate": func(c *SynthConfig) { c.FrameRate = 0 },
		"audio w/o sr": func(c *SynthConfig) { c.SampleRate = 0 },
	} {
		cfg := DefaultSynthConfig()
		mutate(&cfg)
		if err := WriteSynthetic(&bytes.Buffer{}, cfg); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWriteSyntheticFrameCount(t *testing.T) {
	t.Parallel()
	cfg := DefaultSynthConfig()
	cfg.Duration = 400 * time.Millisecond
	cfg.Audio = false
	if cfg.Frames() != 10 {
		t.Fatalf("Frames = %d, want 10", cfg.Frames())
	}

	var buf bytes.Buffer
	if err := WriteSynthetic(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	if buf.Len()%PacketSize != 0 {
		t.Fatalf("output is %d bytes, not whole packets", buf.Len())
	}

	starts := 0
	data := buf.Bytes()
	for i := 0; i < len(data); i += PacketSize {
		pid := uint16(data[i+1]&0x1F)<<8 | uint16(data[i+2])
		if pid == PIDVideo && data[i+1]&0x40 != 0 {
			starts++
		}
	}
	if starts != 10 {
		t.Errorf("video PES starts = %d, want 10", starts)
	}
}
