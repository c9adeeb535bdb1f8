package quic

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/zsiec/reel/internal/certs"
	"github.com/zsiec/reel/internal/ingest"
)

const dialTimeout = 10 * time.Second

// PullRequest describes a remote publisher and the key to pull.
type PullRequest struct {
	Address     string `json:"address"`
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ParseURL turns quic://host:port/key?fp=<sha256 hex> into a PullRequest.
func ParseURL(raw string) (PullRequest, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PullRequest{}, fmt.Errorf("parse QUIC URL: %w", err)
	}
	if u.Scheme != "quic" {
		return PullRequest{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return PullRequest{}, fmt.Errorf("address is required")
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return PullRequest{}, fmt.Errorf("stream key is required")
	}
	return PullRequest{Address: u.Host, Key: key, Fingerprint: u.Query().Get("fp")}, nil
}

// TLSConfig returns the client config for the request: pinned to the
// fingerprint when one is given, system roots otherwise.
func (r PullRequest) TLSConfig() (*tls.Config, error) {
	if r.Fingerprint != "" {
		return certs.PinnedClientConfig(r.Fingerprint, ALPN)
	}
	return &tls.Config{NextProtos: []string{ALPN}, MinVersion: tls.VersionTLS13}, nil
}

// Source is an accepted pull usable as a storage source. Reads return
// io.EOF once the publisher finishes the stream.
type Source struct {
	*ingest.MeteredReader
	conn quicgo.Connection
}

// Dial connects to the publisher, requests req.Key and waits for the
// status. A non-OK status is returned as ErrNotFound or ErrRejected.
func Dial(ctx context.Context, req PullRequest, log *slog.Logger) (*Source, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "quic-caller", "address", req.Address, "key", req.Key)

	tlsConf, err := req.TLSConfig()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := quicgo.DialAddr(ctx, req.Address, tlsConf, &quicgo.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("QUIC dial failed: %w", err)
	}

	str, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if _, err := str.Write(appendRequest(nil, req.Key)); err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("send request: %w", err)
	}
	str.Close()

	r := bufio.NewReaderSize(str, 64*1024)
	status, err := readStatus(r)
	if err == nil {
		err = status.err()
	}
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("pull %q: %w", req.Key, err)
	}

	log.Info("connected")
	return &Source{
		MeteredReader: ingest.NewMeteredReader(r, conn.RemoteAddr().String()),
		conn:          conn,
	}, nil
}

// Close tears down the connection.
func (s *Source) Close() error {
	return s.conn.CloseWithError(0, "")
}
