package ingest

import (
	"io"
	"os"
	"sync/atomic"
	"time"
)

// SourceStats captures read-level metrics for a storage or network source,
// exposed via the API for monitoring source health.
type SourceStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr,omitempty"`
}

// meter accumulates read counters shared by registry streams and metered
// readers.
type meter struct {
	startedAt     time.Time
	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

func (m *meter) start(at time.Time) {
	m.startedAt = at
}

// RecordRead increments the byte and read counters.
func (m *meter) RecordRead(n int) {
	m.bytesReceived.Add(int64(n))
	m.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the source for diagnostics.
func (m *meter) SetRemoteAddr(addr string) {
	m.remoteAddr.Store(addr)
}

// SourceStats returns a snapshot of read metrics.
func (m *meter) SourceStats() SourceStats {
	addr, _ := m.remoteAddr.Load().(string)
	return SourceStats{
		BytesReceived: m.bytesReceived.Load(),
		ReadCount:     m.readCount.Load(),
		ConnectedAt:   m.startedAt.UnixMilli(),
		UptimeMs:      time.Since(m.startedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// MeteredReader wraps a source and records every read.
type MeteredReader struct {
	meter
	r io.Reader
}

// NewMeteredReader wraps r. remote is an optional address label.
func NewMeteredReader(r io.Reader, remote string) *MeteredReader {
	m := &MeteredReader{r: r}
	m.start(time.Now())
	if remote != "" {
		m.SetRemoteAddr(remote)
	}
	return m
}

func (m *MeteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		m.RecordRead(n)
	}
	return n, err
}

// Close closes the wrapped reader when it is an io.Closer.
func (m *MeteredReader) Close() error {
	if c, ok := m.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenFile opens a local file as a metered source. "-" selects stdin.
func OpenFile(path string) (*MeteredReader, error) {
	if path == "-" {
		return NewMeteredReader(io.NopCloser(os.Stdin), "stdin"), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewMeteredReader(f, "file://"+path), nil
}
