// Package tsmux writes MPEG-TS: PES framing, 188-byte packetization, and
// PAT/PMT sections. It also generates synthetic MPEG-1 video and LPCM audio
// streams for tests and the gen command.
package tsmux

// PES stream IDs.
const (
	StreamIDVideo   = 0xE0
	StreamIDPrivate = 0xBD
)

// BuildPES frames es as one PES packet with a PTS. The length field is zero
// when the packet would exceed 16 bits, which is legal for video only.
func BuildPES(streamID byte, pts int64, es []byte) []byte {
	hdr := []byte{
		0x00, 0x00, 0x01, streamID,
		0x00, 0x00, // PES_packet_length
		0x80, // marker bits '10'
		0x80, // PTS only
		0x05, // header data length
		0, 0, 0, 0, 0,
	}
	encodePTS(hdr[9:14], 0x20, pts)

	pes := make([]byte, 0, len(hdr)+len(es))
	pes = append(pes, hdr...)
	if n := len(hdr) - 6 + len(es); n <= 0xFFFF {
		pes[4] = byte(n >> 8)
		pes[5] = byte(n)
	}
	return append(pes, es...)
}

// encodePTS writes a 33-bit timestamp with the given 4-bit prefix nibble and
// marker bits.
func encodePTS(b []byte, prefix byte, ts int64) {
	ts &= 1<<33 - 1
	b[0] = prefix | byte(ts>>29)&0x0E | 0x01
	b[1] = byte(ts >> 22)
	b[2] = byte(ts>>14)&0xFE | 0x01
	b[3] = byte(ts >> 7)
	b[4] = byte(ts<<1)&0xFE | 0x01
}

// Packetize splits data into 188-byte TS packets on pid, stuffing the last
// packet through its adaptation field. cc is advanced per packet.
func Packetize(data []byte, pid uint16, cc *byte) []byte {
	const capacity = PacketSize - 4

	var out []byte
	for offset, first := 0, true; offset < len(data); first = false {
		var pkt [PacketSize]byte
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		pkt[2] = byte(pid)
		if first {
			pkt[1] |= 0x40
		}
		pkt[3] = 0x10 | *cc&0x0F
		*cc = (*cc + 1) & 0x0F

		remaining := len(data) - offset
		if remaining >= capacity {
			copy(pkt[4:], data[offset:offset+capacity])
			offset += capacity
			out = append(out, pkt[:]...)
			continue
		}

		stuff := capacity - remaining
		pkt[3] |= 0x20
		pkt[4] = byte(stuff - 1)
		if stuff > 1 {
			pkt[5] = 0 // no adaptation flags
			for i := 6; i < 4+stuff; i++ {
				pkt[i] = 0xFF
			}
		}
		copy(pkt[4+stuff:], data[offset:])
		offset = len(data)
		out = append(out, pkt[:]...)
	}
	return out
}
