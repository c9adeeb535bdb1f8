package tsmux

import (
	"encoding/binary"

	"github.com/zsiec/reel/internal/mpegts"
)

// PacketSize is the fixed transport packet size.
const PacketSize = 188

// Fixed PIDs used by Muxer.
const (
	PIDPMT   = 0x1000
	PIDVideo = 0x0100
	PIDAudio = 0x0101
)

// Stream is one PMT entry.
type Stream struct {
	PID        uint16
	StreamType byte
}

func withCRC(section []byte) []byte {
	return binary.BigEndian.AppendUint32(section, mpegts.CRC32(section))
}

// PATSection builds a single-program PAT section including its CRC.
func PATSection(program, pmtPID uint16) []byte {
	s := []byte{
		0x00,       // table_id
		0xB0, 0x0D, // syntax + length 13
		0x00, 0x01, // transport_stream_id
		0xC1, 0x00, 0x00,
		byte(program >> 8), byte(program),
		0xE0 | byte(pmtPID>>8), byte(pmtPID),
	}
	return withCRC(s)
}

// PMTSection builds a PMT section including its CRC. The first stream
// carries the PCR.
func PMTSection(program uint16, streams []Stream) []byte {
	length := 13 + 5*len(streams)
	var pcr uint16 = 0x1FFF
	if len(streams) > 0 {
		pcr = streams[0].PID
	}
	s := []byte{
		0x02,
		0xB0 | byte(length>>8), byte(length),
		byte(program >> 8), byte(program),
		0xC1, 0x00, 0x00,
		0xE0 | byte(pcr>>8), byte(pcr),
		0xF0, 0x00, // program_info_length 0
	}
	for _, st := range streams {
		s = append(s, st.StreamType, 0xE0|byte(st.PID>>8), byte(st.PID), 0xF0, 0x00)
	}
	return withCRC(s)
}

// psiPacket wraps a section in one TS packet with a zero pointer field and
// 0xFF stuffing.
func psiPacket(pid uint16, section []byte, cc *byte) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = 0x47
	pkt[1] = 0x40 | byte(pid>>8)&0x1F
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | *cc&0x0F
	*cc = (*cc + 1) & 0x0F
	pkt[4] = 0 // pointer_field
	n := copy(pkt[5:], section)
	for i := 5 + n; i < PacketSize; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}
