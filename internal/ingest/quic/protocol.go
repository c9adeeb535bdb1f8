// Package quic pulls MPEG-TS sources over QUIC and publishes local files to
// such pulls. One bidirectional stream carries one pull: the client sends
// the stream key, the server answers with a status and, on success, the
// file bytes until FIN.
//
// Request:  varint(len(key)) key
// Response: varint(status) payload...
package quic

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// ALPN is the application protocol negotiated on every connection.
const ALPN = "reel-pull/1"

const maxKeyLen = 1024

// Status is the first varint of a response.
type Status uint64

const (
	StatusOK         Status = 0
	StatusNotFound   Status = 1
	StatusBadRequest Status = 2
	StatusInternal   Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusBadRequest:
		return "bad request"
	case StatusInternal:
		return "internal error"
	default:
		return fmt.Sprintf("status(%d)", uint64(s))
	}
}

var (
	// ErrNotFound means the publisher has nothing under the requested key.
	ErrNotFound = errors.New("quic: stream not found")
	// ErrRejected means the publisher refused the request.
	ErrRejected = errors.New("quic: request rejected")
)

func (s Status) err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %s", ErrRejected, s)
	}
}

func appendRequest(b []byte, key string) []byte {
	b = quicvarint.Append(b, uint64(len(key)))
	return append(b, key...)
}

func readRequest(r *bufio.Reader) (string, error) {
	n, err := quicvarint.Read(r)
	if err != nil {
		return "", fmt.Errorf("read key length: %w", err)
	}
	if n == 0 || n > maxKeyLen {
		return "", fmt.Errorf("key length %d outside [1, %d]", n, maxKeyLen)
	}
	key := make([]byte, n)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return string(key), nil
}

func readStatus(r *bufio.Reader) (Status, error) {
	v, err := quicvarint.Read(r)
	if err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	return Status(v), nil
}

func appendStatus(b []byte, s Status) []byte {
	return quicvarint.Append(b, uint64(s))
}
