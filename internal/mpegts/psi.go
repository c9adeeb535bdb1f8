package mpegts

import "fmt"

const (
	pidPAT     = 0x0000
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// sections walks the PSI sections in payload, starting after the pointer
// field. It stops at stuffing, at a header without the syntax bit set, or
// at a truncated section. complete reports whether the walk ended on a
// section boundary rather than on missing bytes.
func sections(payload []byte, fn func(section []byte)) (complete bool) {
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return false
	}
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true
		}
		if offset+3 > len(payload) {
			return false
		}
		// Zero padding clears section_syntax_indicator.
		if payload[offset+1]&0x80 == 0 {
			return true
		}
		end := offset + 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if end > len(payload) {
			return false
		}
		if fn != nil {
			fn(payload[offset:end])
		}
		offset = end
	}
	return true
}

func parsePSI(pid uint16, payload []byte) ([]*Unit, error) {
	var (
		units    []*Unit
		firstErr error
	)
	sections(payload, func(section []byte) {
		var (
			u   = &Unit{PID: pid}
			err error
		)
		switch section[0] {
		case tableIDPAT:
			u.PAT, err = parsePATSection(section)
		case tableIDPMT:
			u.PMT, err = parsePMTSection(section)
		default:
			return
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		units = append(units, u)
	})
	return units, firstErr
}

func checkSection(section []byte, minLen int) error {
	if len(section) < minLen {
		return fmt.Errorf("section too short (%d bytes)", len(section))
	}
	if CRC32(section) != 0 {
		return fmt.Errorf("CRC32 mismatch")
	}
	return nil
}

// parsePATSection decodes program entries from bytes 8 up to the CRC.
func parsePATSection(section []byte) (*PAT, error) {
	if err := checkSection(section, 12); err != nil {
		return nil, fmt.Errorf("mpegts: PAT %w", err)
	}
	pat := &PAT{}
	for i := 8; i+4 <= len(section)-4; i += 4 {
		program := uint16(section[i])<<8 | uint16(section[i+1])
		if program == 0 {
			continue // NIT
		}
		pat.Programs = append(pat.Programs, PATProgram{
			ProgramNumber: program,
			PMTPID:        uint16(section[i+2]&0x1F)<<8 | uint16(section[i+3]),
		})
	}
	return pat, nil
}

// parsePMTSection decodes the PCR PID and elementary stream loop, skipping
// program and ES descriptors.
func parsePMTSection(section []byte) (*PMT, error) {
	if err := checkSection(section, 16); err != nil {
		return nil, fmt.Errorf("mpegts: PMT %w", err)
	}
	pmt := &PMT{
		ProgramNumber: uint16(section[3])<<8 | uint16(section[4]),
		PCRPID:        uint16(section[8]&0x1F)<<8 | uint16(section[9]),
	}
	offset := 12 + (int(section[10]&0x0F)<<8 | int(section[11]))
	for offset+5 <= len(section)-4 {
		pmt.Streams = append(pmt.Streams, ElementaryStream{
			StreamType: section[offset],
			PID:        uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2]),
		})
		offset += 5 + (int(section[offset+3]&0x0F)<<8 | int(section[offset+4]))
	}
	return pmt, nil
}
