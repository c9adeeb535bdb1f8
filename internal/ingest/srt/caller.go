package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/reel/internal/ingest"
)

const dialTimeout = 10 * time.Second

// PullRequest describes a remote SRT source to pull from.
type PullRequest struct {
	Address  string `json:"address"`
	StreamID string `json:"streamId,omitempty"`
}

// ParseURL turns srt://host:port?streamid=live/key (or srt://host:port/key)
// into a PullRequest.
func ParseURL(raw string) (PullRequest, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PullRequest{}, fmt.Errorf("parse SRT URL: %w", err)
	}
	if u.Scheme != "srt" {
		return PullRequest{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return PullRequest{}, fmt.Errorf("address is required")
	}
	req := PullRequest{
		Address:  u.Host,
		StreamID: u.Query().Get("streamid"),
	}
	if req.StreamID == "" {
		if key := strings.TrimPrefix(u.Path, "/"); key != "" {
			req.StreamID = "live/" + key
		}
	}
	return req, nil
}

// Source is an established SRT caller connection usable as a storage
// source.
type Source struct {
	*ingest.MeteredReader
	conn *srtgo.Conn
}

// Dial connects to the remote SRT listener synchronously (with a timeout),
// returning an error if the connection fails or ctx ends first. If log is
// nil, slog.Default() is used.
func Dial(ctx context.Context, req PullRequest, log *slog.Logger) (*Source, error) {
	if req.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-caller", "address", req.Address)

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	if req.StreamID != "" {
		cfg.StreamID = req.StreamID
	}

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial failed: %w", res.err)
		}
		log.Info("connected", "stream_id", req.StreamID)
		return &Source{
			MeteredReader: ingest.NewMeteredReader(connReader{conn: res.conn, log: log}, req.Address),
			conn:          res.conn,
		}, nil
	case <-timer.C:
		// Drain the dial result in the background and close any leaked connection.
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close closes the SRT connection.
func (s *Source) Close() error {
	return s.conn.Close()
}

// connReader reports any read failure as end of stream: an SRT connection
// does not recover from a read error.
type connReader struct {
	conn *srtgo.Conn
	log  *slog.Logger
}

func (c connReader) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.log.Debug("read error", "error", err)
		}
		return n, io.EOF
	}
	return n, nil
}
