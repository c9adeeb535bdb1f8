package quic

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	quicgo "github.com/quic-go/quic-go"
)

// PublisherStats counts requests by outcome.
type PublisherStats struct {
	Requests  int64 `json:"requests"`
	Served    int64 `json:"served"`
	NotFound  int64 `json:"notFound"`
	Rejected  int64 `json:"rejected"`
	BytesSent int64 `json:"bytesSent"`
}

// Publisher serves files under a directory to QUIC pulls. The key names a
// file relative to the directory; ".ts" is appended when the key has no
// extension.
type Publisher struct {
	dir string
	tls *tls.Config
	log *slog.Logger
	ln  *quicgo.Listener
	wg  sync.WaitGroup

	requests atomic.Int64
	served   atomic.Int64
	notFound atomic.Int64
	rejected atomic.Int64
	bytes    atomic.Int64
}

// NewPublisher creates a publisher for dir. tlsConf must carry a
// certificate; its NextProtos is set to ALPN. If log is nil,
// slog.Default() is used.
func NewPublisher(dir string, tlsConf *tls.Config, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{ALPN}
	return &Publisher{
		dir: dir,
		tls: tlsConf,
		log: log.With("component", "quic-publisher"),
	}
}

// Listen binds the UDP address and returns the bound address.
func (p *Publisher) Listen(addr string) (net.Addr, error) {
	ln, err := quicgo.ListenAddr(addr, p.tls, &quicgo.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("QUIC listen: %w", err)
	}
	p.ln = ln
	p.log.Info("QUIC publisher listening", "addr", ln.Addr().String(), "dir", p.dir)
	return ln.Addr(), nil
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight pulls to finish.
func (p *Publisher) Serve(ctx context.Context) error {
	if p.ln == nil {
		return errors.New("quic: publisher not listening")
	}
	go func() {
		<-ctx.Done()
		p.ln.Close()
	}()
	defer p.wg.Wait()

	for {
		conn, err := p.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("QUIC accept: %w", err)
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handle(ctx, conn)
		}()
	}
}

func (p *Publisher) handle(ctx context.Context, conn quicgo.Connection) {
	log := p.log.With("remote", conn.RemoteAddr().String())
	str, err := conn.AcceptStream(ctx)
	if err != nil {
		log.Debug("no request stream", "error", err)
		conn.CloseWithError(0, "")
		return
	}
	p.requests.Add(1)

	key, err := readRequest(bufio.NewReader(str))
	var f *os.File
	status := StatusOK
	switch {
	case err != nil:
		log.Warn("bad request", "error", err)
		status = StatusBadRequest
	default:
		log = log.With("key", key)
		f, status = p.open(key)
	}

	if _, err := str.Write(appendStatus(nil, status)); err != nil {
		log.Warn("write status", "error", err)
		if f != nil {
			f.Close()
		}
		conn.CloseWithError(0, "")
		return
	}
	if status != StatusOK {
		if status == StatusNotFound {
			p.notFound.Add(1)
		} else {
			p.rejected.Add(1)
		}
		str.Close()
		p.linger(ctx, conn)
		return
	}
	defer f.Close()

	n, err := io.Copy(str, f)
	p.bytes.Add(n)
	if err != nil {
		log.Warn("pull aborted", "error", err, "bytes", n)
		str.CancelWrite(0)
		conn.CloseWithError(0, "")
		return
	}
	str.Close()
	p.served.Add(1)
	log.Info("pull served", "bytes", n)
	p.linger(ctx, conn)
}

// linger keeps the connection open until the client has drained the
// stream and closed it.
func (p *Publisher) linger(ctx context.Context, conn quicgo.Connection) {
	select {
	case <-conn.Context().Done():
	case <-ctx.Done():
		conn.CloseWithError(0, "")
	}
}

func (p *Publisher) open(key string) (*os.File, Status) {
	if !validKey(key) {
		return nil, StatusBadRequest
	}
	name := filepath.FromSlash(key)
	if filepath.Ext(name) == "" {
		name += ".ts"
	}
	f, err := os.Open(filepath.Join(p.dir, name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, StatusNotFound
	case err != nil:
		p.log.Error("open published file", "key", key, "error", err)
		return nil, StatusInternal
	}
	return f, StatusOK
}

// validKey accepts slash-separated relative names without dot segments.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// Stats returns request counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Requests:  p.requests.Load(),
		Served:    p.served.Load(),
		NotFound:  p.notFound.Load(),
		Rejected:  p.rejected.Load(),
		BytesSent: p.bytes.Load(),
	}
}
