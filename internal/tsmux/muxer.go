package tsmux

import (
	"io"

	"github.com/zsiec/reel/internal/mpegts"
)

const programNumber = 1

// Muxer writes a single-program transport stream with one MPEG-1 video
// stream and an optional LPCM audio stream.
type Muxer struct {
	w        io.Writer
	streams  []Stream
	ccPAT    byte
	ccPMT    byte
	ccVideo  byte
	ccAudio  byte
	psiEvery int
	written  int
}

// NewMuxer creates a muxer. PSI is repeated every psiEvery video frames;
// zero writes it once.
func NewMuxer(w io.Writer, withAudio bool, psiEvery int) *Muxer {
	m := &Muxer{w: w, psiEvery: psiEvery}
	m.streams = append(m.streams, Stream{PID: PIDVideo, StreamType: mpegts.StreamTypeMPEG1Video})
	if withAudio {
		m.streams = append(m.streams, Stream{PID: PIDAudio, StreamType: mpegts.StreamTypeLPCM})
	}
	return m
}

// WritePSI emits PAT and PMT packets.
func (m *Muxer) WritePSI() error {
	if _, err := m.w.Write(psiPacket(0, PATSection(programNumber, PIDPMT), &m.ccPAT)); err != nil {
		return err
	}
	_, err := m.w.Write(psiPacket(PIDPMT, PMTSection(programNumber, m.streams), &m.ccPMT))
	return err
}

// WriteVideo writes one video access unit at pts (90 kHz).
func (m *Muxer) WriteVideo(pts int64, au []byte) error {
	if m.written == 0 || (m.psiEvery > 0 && m.written%m.psiEvery == 0) {
		if err := m.WritePSI(); err != nil {
			return err
		}
	}
	m.written++
	_, err := m.w.Write(Packetize(BuildPES(StreamIDVideo, pts, au), PIDVideo, &m.ccVideo))
	return err
}

// WriteAudio writes one block of interleaved s16le PCM at pts (90 kHz).
func (m *Muxer) WriteAudio(pts int64, pcm []byte) error {
	_, err := m.w.Write(Packetize(BuildPES(StreamIDPrivate, pts, pcm), PIDAudio, &m.ccAudio))
	return err
}
