package ingest

import (
	"errors"
	"io"
	"sync"
)

// ErrStagedClosed is returned by reads on a closed StagedReader.
var ErrStagedClosed = errors.New("ingest: staged reader closed")

const stagedReadSize = 64 * 1024

// TryReader is implemented by sources that can report buffered bytes
// without waiting on the network.
type TryReader interface {
	// TryRead copies whatever is already available into p. It returns
	// (0, nil) when nothing is available yet.
	TryRead(p []byte) (int, error)
}

// StagedReader moves reads from a live source onto its own goroutine. The
// goroutine fills a staging area of at most limit bytes; Read waits for
// staged bytes and TryRead never waits. A stalled publisher therefore
// cannot block a caller that only uses TryRead.
type StagedReader struct {
	src   io.Reader
	limit int

	mu     sync.Mutex
	cond   *sync.Cond
	staged []byte
	err    error
	closed bool
}

var _ TryReader = (*StagedReader)(nil)

// NewStagedReader starts staging reads from src. limit is clamped to at
// least one read.
func NewStagedReader(src io.Reader, limit int) *StagedReader {
	if limit <= 0 {
		limit = stagedReadSize
	}
	s := &StagedReader{src: src, limit: limit, staged: make([]byte, 0, limit)}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *StagedReader) loop() {
	chunk := make([]byte, min(s.limit, stagedReadSize))
	for {
		s.mu.Lock()
		for len(s.staged) >= s.limit && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		want := min(len(chunk), s.limit-len(s.staged))
		s.mu.Unlock()

		n, err := s.src.Read(chunk[:want])

		s.mu.Lock()
		if n > 0 && !s.closed {
			s.staged = append(s.staged, chunk[:n]...)
		}
		if err != nil && s.err == nil {
			s.err = err
		}
		s.cond.Broadcast()
		done := err != nil || s.closed
		s.mu.Unlock()
		if done {
			return
		}
	}
}

// Read waits until bytes are staged, the source fails or the reader is
// closed. Staged bytes are delivered before the source error.
func (s *StagedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.staged) == 0 && s.err == nil && !s.closed {
		s.cond.Wait()
	}
	return s.takeLocked(p)
}

// TryRead implements TryReader.
func (s *StagedReader) TryRead(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked(p)
}

func (s *StagedReader) takeLocked(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStagedClosed
	}
	if len(s.staged) > 0 {
		n := copy(p, s.staged)
		s.staged = s.staged[:copy(s.staged, s.staged[n:])]
		s.cond.Broadcast()
		return n, nil
	}
	return 0, s.err
}

// Staged returns the number of bytes waiting to be read.
func (s *StagedReader) Staged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// Unwrap returns the underlying source.
func (s *StagedReader) Unwrap() io.Reader { return s.src }

// Close wakes any waiting reader and closes the source when it is an
// io.Closer, which also ends a read blocked in the staging goroutine.
func (s *StagedReader) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.staged = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
