package mpegts

import "fmt"

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// hasOptionalHeader reports whether a stream ID carries the optional PES
// header: padding, private_stream_2, ECM, EMM, directory, DSMCC and H.222.1
// type E do not.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PES, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("mpegts: PES packet too short (%d bytes)", len(payload))
	}
	if !isPESPayload(payload) {
		return nil, fmt.Errorf("mpegts: invalid PES start code")
	}

	pes := &PES{StreamID: payload[3]}
	packetLength := int(payload[4])<<8 | int(payload[5])

	// end bounds the unit; a zero length means unbounded (video).
	end := len(payload)
	if packetLength > 0 && 6+packetLength <= len(payload) {
		end = 6 + packetLength
	}

	if !hasOptionalHeader(pes.StreamID) {
		pes.Data = payload[6:end]
		return pes, nil
	}
	if len(payload) < 9 {
		return nil, fmt.Errorf("mpegts: PES optional header too short")
	}

	// payload[7] top two bits: PTS_DTS_flags; payload[8]: header data length.
	flags := payload[7] >> 6
	dataStart := min(9+int(payload[8]), end)

	if flags&0x2 != 0 && len(payload) >= 14 {
		pes.HasPTS = true
		pes.PTS = parseTimestamp(payload[9:14])
	}
	if flags == 0x3 && len(payload) >= 19 {
		pes.HasDTS = true
		pes.DTS = parseTimestamp(payload[14:19])
	}

	pes.Data = payload[dataStart:end]
	return pes, nil
}

// parseTimestamp extracts a 33-bit timestamp from 5 PES timestamp bytes.
func parseTimestamp(bs []byte) int64 {
	return int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
}
