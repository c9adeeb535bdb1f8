// Package mpegts implements incremental MPEG-TS demuxing over a bounded
// byte feed. It discovers PAT/PMT, reassembles PES units with PTS/DTS, and
// never blocks: when fewer than one packet is buffered it reports
// ErrNeedData and resumes on the next call.
package mpegts

// Stream types carried in PMT elementary stream entries.
const (
	StreamTypeMPEG1Video  = 0x01
	StreamTypeMPEG2Video  = 0x02
	StreamTypeMPEG1Audio  = 0x03
	StreamTypeMPEG2Audio  = 0x04
	StreamTypePrivatePES  = 0x06
	StreamTypeH264        = 0x1B
	StreamTypeLPCM        = 0x80
	StreamTypeSCTE35      = 0x86
	pesClockHz            = 90000
	maxPTS                = 1 << 33
	streamIDPrivateStream = 0xBD
)

// Packet is a parsed 188-byte transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// Unit is one logical output of the demuxer. Exactly one of PAT, PMT or
// PES is non-nil.
type Unit struct {
	PID uint16
	PAT *PAT
	PMT *PMT
	PES *PES
}

// PAT is a parsed Program Association Table.
type PAT struct {
	Programs []PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramNumber uint16
	PMTPID        uint16
}

// PMT is a parsed Program Map Table.
type PMT struct {
	ProgramNumber uint16
	PCRPID        uint16
	Streams       []ElementaryStream
}

// ElementaryStream describes a single elementary stream in a PMT.
type ElementaryStream struct {
	PID        uint16
	StreamType uint8
}

// IsVideo reports whether the stream type carries MPEG-1/2 or H.264 video.
func (es ElementaryStream) IsVideo() bool {
	switch es.StreamType {
	case StreamTypeMPEG1Video, StreamTypeMPEG2Video, StreamTypeH264:
		return true
	}
	return false
}

// IsLPCM reports whether the stream type is a private PES the gateway
// treats as interleaved 16-bit PCM.
func (es ElementaryStream) IsLPCM() bool {
	return es.StreamType == StreamTypeLPCM || es.StreamType == StreamTypePrivatePES
}

// PES is a reassembled Packetized Elementary Stream unit.
type PES struct {
	StreamID uint8
	HasPTS   bool
	PTS      int64 // 90 kHz
	HasDTS   bool
	DTS      int64 // 90 kHz
	Data     []byte
}

// Seconds converts a 90 kHz timestamp to seconds.
func Seconds(ts int64) float64 {
	return float64(ts) / pesClockHz
}

// UnwrapPTS returns ts adjusted to be the closest value to prev modulo the
// 33-bit PTS range, so timestamps stay monotonic across a wrap.
func UnwrapPTS(prev, ts int64) int64 {
	base := prev - prev%maxPTS
	cand := base + ts%maxPTS
	switch {
	case cand-prev > maxPTS/2:
		cand -= maxPTS
	case prev-cand > maxPTS/2:
		cand += maxPTS
	}
	return cand
}
