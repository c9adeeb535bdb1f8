package mpegts

import "sort"

// assembler collects payload bytes for one PID until a unit boundary.
type assembler struct {
	pid     uint16
	psi     bool
	started bool
	lastCC  uint8
	buf     []byte
}

// push adds a packet and returns a completed unit payload, if any. A unit
// completes when the next one starts, when a PSI section is whole, or when
// a length-bounded PES has all its bytes.
func (a *assembler) push(p *Packet) []byte {
	h := p.Header
	if h.TransportErrorIndicator {
		a.reset()
		return nil
	}
	if !h.HasPayload {
		return nil
	}

	if a.started && !h.DiscontinuityIndicator {
		want := (a.lastCC + 1) & 0x0F
		if h.ContinuityCounter != want {
			if h.ContinuityCounter == a.lastCC {
				return nil // duplicate
			}
			a.reset()
		}
	}
	a.lastCC = h.ContinuityCounter

	var done []byte
	if h.PayloadUnitStartIndicator {
		if a.started && len(a.buf) > 0 {
			done = a.buf
			a.buf = nil
		}
		a.started = true
	}
	if !a.started {
		return done // mid-unit join
	}
	a.buf = append(a.buf, p.Payload...)

	if done == nil && a.whole() {
		done = a.buf
		a.buf = nil
	}
	return done
}

func (a *assembler) whole() bool {
	if a.psi {
		return sections(a.buf, nil)
	}
	if len(a.buf) < 6 || !isPESPayload(a.buf) {
		return false
	}
	n := int(a.buf[4])<<8 | int(a.buf[5])
	return n > 0 && len(a.buf) >= 6+n
}

func (a *assembler) reset() {
	a.buf = nil
	a.started = false
}

func (a *assembler) flush() []byte {
	b := a.buf
	a.reset()
	return b
}

// assemblers holds one assembler per PID plus the set of known PMT PIDs.
type assemblers struct {
	byPID   map[uint16]*assembler
	pmtPIDs map[uint16]bool
}

func newAssemblers() *assemblers {
	return &assemblers{
		byPID:   make(map[uint16]*assembler),
		pmtPIDs: make(map[uint16]bool),
	}
}

func (s *assemblers) isPSI(pid uint16) bool {
	return pid == pidPAT || s.pmtPIDs[pid]
}

func (s *assemblers) addPMT(pid uint16) {
	s.pmtPIDs[pid] = true
	if a, ok := s.byPID[pid]; ok {
		a.psi = true
	}
}

func (s *assemblers) push(p *Packet) []byte {
	a, ok := s.byPID[p.Header.PID]
	if !ok {
		a = &assembler{pid: p.Header.PID, psi: s.isPSI(p.Header.PID)}
		s.byPID[p.Header.PID] = a
	}
	return a.push(p)
}

// drain flushes every pending unit ordered by PID, so PAT precedes PMTs.
func (s *assemblers) drain(fn func(pid uint16, payload []byte)) {
	pids := make([]int, 0, len(s.byPID))
	for pid := range s.byPID {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)
	for _, pid := range pids {
		if b := s.byPID[uint16(pid)].flush(); len(b) > 0 {
			fn(uint16(pid), b)
		}
	}
}
