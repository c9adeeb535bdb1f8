package ingest

import (
	"io"
	"sort"
	"sync"
	"time"
)

// Stream represents an active listener-mode ingest connection, coupling the
// raw byte reader with metadata and lifecycle signaling. Bytes written to
// the internal pipe by a network receiver are read by a playback session.
type Stream struct {
	meter
	Key       string
	StartedAt time.Time
	input     io.ReadCloser
	pw        io.WriteCloser
	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Registry tracks active ingest streams by key and dispatches new streams
// to the onStream callback, which opens a playback session on them. It is
// the rendezvous point between network listeners and the player.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(key string, input io.Reader)
}

// NewRegistry creates a Registry. The onStream callback is invoked
// asynchronously whenever a new stream is registered.
func NewRegistry(onStream func(key string, input io.Reader)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a new ingest stream with the given key, returning the
// Stream and a Writer that the network receiver should write into. A stream
// already registered under key is replaced and its pipe closed.
func (r *Registry) Register(key string) (*Stream, io.Writer) {
	pr, pw := io.Pipe()

	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}
	stream.start(stream.StartedAt)

	r.mu.Lock()
	prev, replaced := r.streams[key]
	r.streams[key] = stream
	r.mu.Unlock()

	if replaced {
		prev.closeOnce.Do(func() {
			prev.pw.Close()
			close(prev.done)
		})
	}

	if r.onStream != nil {
		go r.onStream(key, pr)
	}

	return stream, pw
}

// Unregister removes the stream, closing its pipe and signaling Done. A
// stream that was already replaced under its key is only closed, so a late
// Unregister from a superseded receiver leaves the newer stream in place.
func (r *Registry) Unregister(stream *Stream) {
	r.mu.Lock()
	cur, ok := r.streams[stream.Key]
	if ok && cur == stream {
		delete(r.streams, stream.Key)
	}
	r.mu.Unlock()

	stream.closeOnce.Do(func() {
		stream.pw.Close()
		close(stream.done)
	})
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Keys returns the registered stream keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
