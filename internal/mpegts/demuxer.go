package mpegts

import (
	"bytes"
	"errors"
	"io"
)

// ErrNeedData is returned by Next when less than one packet is buffered
// and the feed has not reached end of stream.
var ErrNeedData = errors.New("mpegts: need more data")

// Feed is the byte supply a Demuxer pulls packets from. Take fills dst
// entirely and returns true, or consumes nothing and returns false.
type Feed interface {
	Take(dst []byte) bool
	EOS() bool
}

// Stats counts demuxer events.
type Stats struct {
	Packets     int64 `json:"packets"`
	Resyncs     int64 `json:"resyncs"`
	BadSections int64 `json:"badSections"`
	BadPES      int64 `json:"badPES"`
}

// Demuxer turns a Feed into PAT, PMT and PES units. It is not safe for
// concurrent use.
type Demuxer struct {
	feed    Feed
	pkt     [packetSize]byte
	have    int
	asm     *assemblers
	pending []*Unit
	eof     bool
	stats   Stats
}

// NewDemuxer creates a demuxer reading from feed.
func NewDemuxer(feed Feed) *Demuxer {
	return &Demuxer{feed: feed, asm: newAssemblers()}
}

// Next returns the next unit. It returns ErrNeedData when the feed is
// short, and io.EOF once the feed has ended and every pending unit has
// been returned.
func (d *Demuxer) Next() (*Unit, error) {
	for {
		if len(d.pending) > 0 {
			u := d.pending[0]
			d.pending = d.pending[1:]
			return u, nil
		}
		if d.eof {
			return nil, io.EOF
		}

		if !d.feed.Take(d.pkt[d.have:]) {
			if d.feed.EOS() {
				d.eof = true
				d.asm.drain(d.emit)
				continue
			}
			return nil, ErrNeedData
		}
		d.have = 0

		if d.pkt[0] != syncByte {
			d.resync()
			continue
		}
		pkt, err := parsePacket(d.pkt[:])
		if err != nil {
			continue
		}
		d.stats.Packets++
		if payload := d.asm.push(pkt); payload != nil {
			d.emit(pkt.Header.PID, payload)
		}
	}
}

// Stats returns a copy of the demuxer counters.
func (d *Demuxer) Stats() Stats { return d.stats }

// resync keeps the bytes from the next sync byte onward so the following
// Take completes a candidate packet.
func (d *Demuxer) resync() {
	d.stats.Resyncs++
	i := bytes.IndexByte(d.pkt[1:], syncByte)
	if i < 0 {
		return
	}
	i++
	d.have = copy(d.pkt[:], d.pkt[i:])
}

func (d *Demuxer) emit(pid uint16, payload []byte) {
	if d.asm.isPSI(pid) {
		units, err := parsePSI(pid, payload)
		if err != nil {
			d.stats.BadSections++
		}
		for _, u := range units {
			if u.PAT != nil {
				for _, p := range u.PAT.Programs {
					d.asm.addPMT(p.PMTPID)
				}
			}
		}
		d.pending = append(d.pending, units...)
		return
	}
	if !isPESPayload(payload) {
		return
	}
	pes, err := parsePES(payload)
	if err != nil {
		d.stats.BadPES++
		return
	}
	d.pending = append(d.pending, &Unit{PID: pid, PES: pes})
}
