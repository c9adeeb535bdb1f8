// Package ingest owns the bounded byte arena that sits between a storage
// source and the decode gateway, along with the source adapters and the
// listener-mode stream registry that feed it.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// MaxCapacity bounds the arena a single session may request.
const MaxCapacity = 64 * 1024 * 1024

var (
	// ErrAllocation means the arena could not be obtained. Fatal at open.
	ErrAllocation = errors.New("ingest: cannot allocate buffer")
	// ErrSource means the source failed before yielding any byte. Fatal at open.
	ErrSource = errors.New("ingest: source read failed")
	// ErrOverflow is returned by Append when the bytes do not fit.
	ErrOverflow = errors.New("ingest: append exceeds free capacity")
)

// BufferStats is a point-in-time view of ingest buffer health.
type BufferStats struct {
	Capacity     int   `json:"capacity"`
	Remaining    int   `json:"remaining"`
	LowWatermark int   `json:"lowWatermark"`
	Refills      int64 `json:"refills"`
	RefillBytes  int64 `json:"refillBytes"`
	ZeroReads    int64 `json:"zeroReads"`
	SourceErrors int64 `json:"sourceErrors"`
	Consumed     int64 `json:"consumed"`
	EOS          bool  `json:"eos"`
}

// Buffer is a fixed-capacity byte arena. Unconsumed bytes live in
// arena[r:w]; the refill path reads from the source straight into
// arena[w:], which consumers never touch, so the source read itself runs
// without holding the lock.
type Buffer struct {
	log       *slog.Logger
	src       io.Reader
	watermark int

	// fillMu serializes writers (Refill, Append).
	fillMu sync.Mutex

	mu    sync.Mutex
	arena []byte
	r, w  int
	eos   bool

	refills      int64
	refillBytes  int64
	zeroReads    int64
	sourceErrors int64
	consumed     int64
}

// Open allocates a buffer of the given capacity and fills it from src until
// the low watermark (capacity/4) is reached, the source reports EOF, or a
// read returns no data. If log is nil, slog.Default() is used.
func Open(src io.Reader, capacity int, log *slog.Logger) (*Buffer, error) {
	return OpenWithWatermark(src, capacity, capacity/4, log)
}

// OpenWithWatermark is Open with an explicit low watermark.
func OpenWithWatermark(src io.Reader, capacity, watermark int, log *slog.Logger) (*Buffer, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d outside (0, %d]", ErrAllocation, capacity, MaxCapacity)
	}
	if watermark <= 0 || watermark > capacity {
		return nil, fmt.Errorf("%w: watermark %d outside (0, %d]", ErrAllocation, watermark, capacity)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrSource)
	}
	if log == nil {
		log = slog.Default()
	}

	b := &Buffer{
		log:       log.With("component", "ingest"),
		src:       src,
		watermark: watermark,
		arena:     make([]byte, capacity),
	}

	// A staged source only waits for its first bytes; the rest of the
	// initial fill takes what has already arrived.
	tr, staged := src.(TryReader)
	for b.Remaining() < b.watermark && !b.EOS() {
		read := b.src.Read
		if staged && b.Remaining() > 0 {
			read = tr.TryRead
		}
		n, err := b.readOnce(read)
		if err != nil {
			if b.Remaining() == 0 {
				return nil, fmt.Errorf("%w: %w", ErrSource, err)
			}
			b.log.Warn("initial fill stopped on source error", "error", err, "remaining", b.Remaining())
			break
		}
		if n == 0 {
			break
		}
	}

	b.log.Debug("initial fill", "bytes", b.Remaining(), "capacity", capacity, "eos", b.EOS())
	return b, nil
}

// Capacity returns the arena size.
func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.arena)
}

// LowWatermark returns the refill threshold.
func (b *Buffer) LowWatermark() int {
	return b.watermark
}

// Remaining returns the count of unconsumed bytes. Consumers drain the
// buffer without notifying the refill path, so this is a trigger, not a
// guarantee about what the next Take will see.
func (b *Buffer) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.w - b.r
}

// NeedsRefill reports whether Remaining has dropped below the low watermark.
func (b *Buffer) NeedsRefill() bool {
	return b.Remaining() < b.watermark
}

// EOS reports whether the source has signaled end of stream.
func (b *Buffer) EOS() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eos
}

// Append copies p into the buffer. It never blocks on I/O; the caller is
// expected to have checked the free space, and ErrOverflow is returned with
// nothing written when p does not fit.
func (b *Buffer) Append(p []byte) error {
	b.fillMu.Lock()
	defer b.fillMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.arena == nil {
		return fmt.Errorf("%w: buffer closed", ErrAllocation)
	}
	if len(p) > len(b.arena)-(b.w-b.r) {
		return ErrOverflow
	}
	b.compactLocked()
	b.w += copy(b.arena[b.w:], p)
	return nil
}

// Refill performs one read of up to Capacity()-Remaining() bytes from the
// source. A short or empty read is normal; io.EOF marks end of stream; any
// other source error is logged and counted. Bytes delivered alongside an
// error are kept and counted. When the source is a TryReader, Refill only
// takes bytes that have already arrived and never waits.
func (b *Buffer) Refill() int {
	if tr, ok := b.src.(TryReader); ok {
		return b.refill(tr.TryRead)
	}
	return b.refill(b.src.Read)
}

// Fill is Refill but always waits for the source. It belongs on open and
// probe paths, never on the render loop.
func (b *Buffer) Fill() int {
	return b.refill(b.src.Read)
}

func (b *Buffer) refill(read func([]byte) (int, error)) int {
	if b.EOS() {
		return 0
	}
	n, err := b.readOnce(read)

	b.mu.Lock()
	b.refills++
	b.refillBytes += int64(n)
	if err != nil {
		b.sourceErrors++
	}
	b.mu.Unlock()
	if err != nil {
		b.log.Warn("refill read failed", "error", err, "bytes", n)
	}
	return n
}

// readOnce compacts the arena, reads once into the free tail without
// holding mu, and publishes the new bytes.
func (b *Buffer) readOnce(read func([]byte) (int, error)) (int, error) {
	b.fillMu.Lock()
	defer b.fillMu.Unlock()

	b.mu.Lock()
	if b.arena == nil {
		b.mu.Unlock()
		return 0, fmt.Errorf("%w: buffer closed", ErrAllocation)
	}
	b.compactLocked()
	tail := b.arena[b.w:]
	b.mu.Unlock()

	if len(tail) == 0 {
		return 0, nil
	}

	n, err := read(tail)
	if n < 0 || n > len(tail) {
		n = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.w += n
	if n == 0 && err == nil {
		b.zeroReads++
	}
	if errors.Is(err, io.EOF) {
		b.eos = true
		return n, nil
	}
	return n, err
}

// compactLocked moves the unconsumed region to the start of the arena.
func (b *Buffer) compactLocked() {
	if b.r == 0 {
		return
	}
	n := copy(b.arena, b.arena[b.r:b.w])
	b.r = 0
	b.w = n
}

// Take copies exactly len(dst) bytes into dst and consumes them. It returns
// false, consuming nothing, when fewer bytes are buffered.
func (b *Buffer) Take(dst []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.w-b.r < len(dst) {
		return false
	}
	copy(dst, b.arena[b.r:b.r+len(dst)])
	b.r += len(dst)
	b.consumed += int64(len(dst))
	return true
}

// Discard drops up to n unconsumed bytes and returns how many were dropped.
func (b *Buffer) Discard(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = min(n, b.w-b.r)
	b.r += n
	b.consumed += int64(n)
	return n
}

// Stats returns a snapshot of buffer counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Capacity:     len(b.arena),
		Remaining:    b.w - b.r,
		LowWatermark: b.watermark,
		Refills:      b.refills,
		RefillBytes:  b.refillBytes,
		ZeroReads:    b.zeroReads,
		SourceErrors: b.sourceErrors,
		Consumed:     b.consumed,
		EOS:          b.eos,
	}
}

// Close releases the arena and closes the source if it is an io.Closer.
func (b *Buffer) Close() error {
	b.fillMu.Lock()
	defer b.fillMu.Unlock()

	b.mu.Lock()
	b.arena = nil
	b.r, b.w = 0, 0
	b.mu.Unlock()

	if c, ok := b.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
