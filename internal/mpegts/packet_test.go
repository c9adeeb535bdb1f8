package mpegts

import "testing"

func TestParsePacket(t *testing.T) {
	t.Parallel()

	buf := make([]byte, packetSize)
	buf[0] = syncByte
	buf[1] = 0x41 // PUSI + PID high bits 1
	buf[2] = 0x00
	buf[3] = 0x37 // AF + payload, CC 7
	buf[4] = 3    // AF length
	buf[5] = 0x80 // discontinuity
	buf[8] = 0xAB

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	h := p.Header
	if h.PID != 0x100 || !h.PayloadUnitStartIndicator || h.ContinuityCounter != 7 {
		t.Errorf("header = %+v", h)
	}
	if !h.DiscontinuityIndicator {
		t.Error("expected discontinuity indicator")
	}
	if len(p.Payload) != packetSize-8 || p.Payload[0] != 0xAB {
		t.Errorf("payload len %d first 0x%02X", len(p.Payload), p.Payload[0])
	}

	buf[8] = 0
	if p.Payload[0] != 0xAB {
		t.Error("payload aliases the read buffer")
	}
}

func TestParsePacketErrors(t *testing.T) {
	t.Parallel()

	if _, err := parsePacket(make([]byte, 100)); err == nil {
		t.Error("expected size error")
	}
	if _, err := parsePacket(make([]byte, packetSize)); err == nil {
		t.Error("expected sync byte error")
	}
}

func TestParsePES(t *testing.T) {
	t.Parallel()

	// PTS 90000 encoded with prefix 0010.
	payload := []byte{
		0x00, 0x00, 0x01, 0xE0,
		0x00, 0x0B,
		0x80, 0x80, 0x05,
		0x21, 0x00, 0x05, 0xBF, 0x21,
		0xDE, 0xAD, 0xBE,
	}
	pes, err := parsePES(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !pes.HasPTS || pes.PTS != 90000 {
		t.Errorf("PTS = %d (has %v), want 90000", pes.PTS, pes.HasPTS)
	}
	if pes.HasDTS {
		t.Error("unexpected DTS")
	}
	if string(pes.Data) != "\xDE\xAD\xBE" {
		t.Errorf("Data = %X", pes.Data)
	}
	if got := Seconds(pes.PTS); got != 1 {
		t.Errorf("Seconds = %v, want 1", got)
	}
}

func TestParsePESNoOptionalHeader(t *testing.T) {
	t.Parallel()

	pes, err := parsePES([]byte{0x00, 0x00, 0x01, 0xBE, 0x00, 0x02, 0xFF, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if pes.HasPTS || len(pes.Data) != 2 {
		t.Errorf("pes = %+v", pes)
	}
}

func TestUnwrapPTS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prev, ts int64
		want     int64
	}{
		{"no wrap", 1000, 4000, 4000},
		{"forward wrap", maxPTS - 1000, 500, maxPTS + 500},
		{"after wrap", maxPTS + 500, 3500, maxPTS + 3500},
		{"small reorder", 5000, 4000, 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapPTS(tt.prev, tt.ts); got != tt.want {
				t.Errorf("UnwrapPTS(%d, %d) = %d, want %d", tt.prev, tt.ts, got, tt.want)
			}
		})
	}
}

func TestElementaryStreamKinds(t *testing.T) {
	t.Parallel()

	if !(ElementaryStream{StreamType: StreamTypeMPEG1Video}).IsVideo() {
		t.Error("MPEG-1 video not recognized")
	}
	if !(ElementaryStream{StreamType: StreamTypeLPCM}).IsLPCM() {
		t.Error("LPCM not recognized")
	}
	if (ElementaryStream{StreamType: StreamTypeSCTE35}).IsVideo() {
		t.Error("SCTE-35 reported as video")
	}
}
