package mpegts

import "fmt"

const (
	packetSize = 188
	syncByte   = 0x47
)

// parsePacket decodes buf as one transport packet. The payload is copied so
// the packet outlives the read buffer.
func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != packetSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{}
	h := &p.Header
	h.TransportErrorIndicator = buf[1]&0x80 != 0
	h.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	h.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	h.HasAdaptationField = buf[3]&0x20 != 0
	h.HasPayload = buf[3]&0x10 != 0
	h.ContinuityCounter = buf[3] & 0x0F

	offset := 4
	if h.HasAdaptationField {
		afLen := int(buf[offset])
		if afLen > 0 {
			h.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
		}
		offset = min(offset+1+afLen, packetSize)
	}

	if h.HasPayload && offset < packetSize {
		p.Payload = append([]byte(nil), buf[offset:]...)
	}
	return p, nil
}

// MPEG-2 CRC32 with polynomial 0x04C11DB7, used by PSI sections.
var crc32Table = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC32 computes the MPEG-2 CRC of data. A section including its trailing
// CRC field checks to zero.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}
