// Package stream tracks the lifecycle of playback sessions, providing the
// start/cancel/list operations used by the CLI and the HTTP API.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zsiec/reel/internal/player"
)

// ErrExists is returned when a session ID is already tracked.
var ErrExists = errors.New("stream: session already running")

// Stream is one tracked playback session.
type Stream struct {
	Session   *player.Session
	Source    string
	StartedAt time.Time

	seq  uint64
	done chan struct{}
	err  error
}

// ID returns the session ID.
func (s *Stream) ID() string { return s.Session.ID }

// Done is closed when the session has finished and been closed.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the error Run ended with. Valid once Done is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Manager runs sessions and tracks them until they finish.
type Manager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	streams map[string]*Stream
	seq     uint64
	wg      sync.WaitGroup
}

// NewManager creates a new stream manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		streams: make(map[string]*Stream),
	}
}

// Start registers sess and runs it in its own goroutine until it stops or
// ctx is cancelled. The session is closed and removed when Run returns.
func (m *Manager) Start(ctx context.Context, sess *player.Session, source string) (*Stream, error) {
	s := &Stream{
		Session:   sess,
		Source:    source,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	if _, ok := m.streams[sess.ID]; ok {
		m.mu.Unlock()
		m.log.Warn("session already exists, rejecting duplicate", "session", sess.ID)
		return nil, ErrExists
	}
	m.seq++
	s.seq = m.seq
	m.streams[sess.ID] = s
	m.mu.Unlock()

	m.log.Info("session started", "session", sess.ID, "name", sess.Name, "source", source)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := sess.Run(ctx)
		if cerr := sess.Close(); err == nil {
			err = cerr
		}
		m.remove(s, err)
	}()
	return s, nil
}

func (m *Manager) remove(s *Stream, err error) {
	m.mu.Lock()
	delete(m.streams, s.ID())
	m.mu.Unlock()

	s.err = err
	close(s.done)
	if err != nil {
		m.log.Error("session failed", "session", s.ID(), "error", err)
		return
	}
	m.log.Info("session removed", "session", s.ID(),
		"reason", s.Session.Reason().String(), "duration", time.Since(s.StartedAt).Round(time.Millisecond))
}

// Get returns the running stream with the given session ID.
func (m *Manager) Get(id string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[id]
	return s, ok
}

// Cancel requests a user cancel of the session. It reports whether the
// session was found.
func (m *Manager) Cancel(id string) bool {
	s, ok := m.Get(id)
	if ok {
		s.Session.RequestCancel(player.CancelUser)
		m.log.Info("session cancel requested", "session", id)
	}
	return ok
}

// List returns all running streams in start order.
func (m *Manager) List() []*Stream {
	m.mu.RLock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.RUnlock()

	sort.Slice(streams, func(i, j int) bool {
		return streams[i].seq < streams[j].seq
	})
	return streams
}

// Len returns the number of running streams.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// Wait blocks until every started session has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
