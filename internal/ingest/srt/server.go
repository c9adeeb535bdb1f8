package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/reel/internal/ingest"
)

// readSize is ten SRT payloads of seven TS packets each.
const readSize = 7 * 188 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// ServerStats counts publisher connections.
type ServerStats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Active   int64 `json:"active"`
}

// Server accepts SRT publishers and registers each one with the ingest
// registry, whose callback opens a playback session on the stream.
type Server struct {
	log      *slog.Logger
	addr     string
	registry *ingest.Registry

	// MaxPublishers caps concurrent publishers; each one costs a session
	// with its own ingest arena. Zero means no cap.
	MaxPublishers int

	accepted atomic.Int64
	rejected atomic.Int64
	active   atomic.Int64
	wg       sync.WaitGroup
}

// NewServer creates an SRT server that listens on addr. If log is nil,
// slog.Default() is used.
func NewServer(addr string, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "srt-server"),
		addr:     addr,
		registry: registry,
	}
}

// Start accepts publishers until ctx is cancelled, then closes every open
// connection and waits for their streams to unregister.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	s.log.Info("listening", "addr", s.addr, "max_publishers", s.MaxPublishers)

	l.SetAcceptRejectFunc(s.admit)
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	defer s.wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		s.accepted.Add(1)
		s.active.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.active.Add(-1)
			s.publish(ctx, conn)
		}()
	}
}

// admit rejects handshakes without a stream ID or beyond MaxPublishers.
func (s *Server) admit(req srtgo.ConnRequest) srtgo.RejectReason {
	full := s.MaxPublishers > 0 && s.active.Load() >= int64(s.MaxPublishers)
	if req.StreamID == "" || full {
		s.rejected.Add(1)
		s.log.Warn("publisher rejected", "stream_id", req.StreamID, "full", full)
		return srtgo.RejPeer
	}
	return 0
}

// publish pipes one publisher into the registry until the connection ends,
// the session stops reading, or ctx is cancelled.
func (s *Server) publish(ctx context.Context, conn *srtgo.Conn) {
	key := StreamKey(conn.StreamID())
	log := s.log.With("stream_key", key, "remote", conn.RemoteAddr().String())
	log.Info("publish")

	stream, w := s.registry.Register(key)
	stream.SetRemoteAddr(conn.RemoteAddr().String())

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	err := copyPublisher(w, conn, stream.RecordRead)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, io.ErrClosedPipe):
		log.Info("session stopped reading")
	default:
		log.Debug("publisher ended", "error", err)
	}

	stats := stream.SourceStats()
	s.registry.Unregister(stream)
	log.Info("connection closed",
		"bytes", stats.BytesReceived, "reads", stats.ReadCount, "uptime_ms", stats.UptimeMs)
}

// copyPublisher moves bytes from r to w, reporting each read. A clean
// io.EOF from r returns nil.
func copyPublisher(w io.Writer, r io.Reader, record func(int)) error {
	buf := make([]byte, readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			record(n)
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Stats returns connection counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Active:   s.active.Load(),
	}
}

// StreamKey derives a registry key from an SRT stream ID such as
// "live/lobby" or "/lobby".
func StreamKey(streamID string) string {
	key := strings.TrimPrefix(strings.TrimPrefix(streamID, "/"), "live/")
	if key == "" {
		return "default"
	}
	return key
}
