package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zsiec/reel/internal/ingest"
	"github.com/zsiec/reel/internal/player"
	"github.com/zsiec/reel/internal/stream"
	"github.com/zsiec/reel/internal/tsmux"
)

// startHeld starts a live session whose publisher stops sending halfway
// through, so it keeps waiting for data until cancelled.
func startHeld(ctx context.Context, t *testing.T, m *stream.Manager) *stream.Stream {
	t.Helper()
	cfg := tsmux.DefaultSynthConfig()
	cfg.Duration = time.Second
	var ts bytes.Buffer
	if err := tsmux.WriteSynthetic(&ts, cfg); err != nil {
		t.Fatal(err)
	}
	half := ts.Len() / 2
	half -= half % 188
	pr, pw := io.Pipe()
	go pw.Write(ts.Bytes()[:half])
	t.Cleanup(func() { pw.Close() })

	opts := player.DefaultOptions()
	opts.Capacity = 1 << 20
	opts.NoDevice = true
	opts.Live = true
	opts.Scheduler.StallTicks = 1 << 20
	opts.Name = "demo"
	sess, err := player.Open(pr, opts)
	if err != nil {
		t.Fatal(err)
	}
	st, err := m.Start(ctx, sess, "srt://live/demo")
	if err != nil {
		t.Fatal(err)
	}
	return st
}

// newTestServer returns the server, its manager and a context that ends
// every session started under it at cleanup.
func newTestServer(t *testing.T) (*httptest.Server, *stream.Manager, context.Context) {
	t.Helper()
	m := stream.NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		m.Wait()
	})
	reg := ingest.NewRegistry(nil)
	cam, _ := reg.Register("live/cam1")
	t.Cleanup(func() { reg.Unregister(cam) })
	srv := httptest.NewServer(NewServer(m, reg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, m, ctx
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	var body map[string]any
	if code := getJSON(t, srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()
	srv, m, ctx := newTestServer(t)
	st := startHeld(ctx, t, m)

	var list []SessionView
	if code := getJSON(t, srv.URL+"/api/sessions", &list); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(list) != 1 || list[0].ID != st.ID() || list[0].Input != "srt://live/demo" || list[0].Name != "demo" {
		t.Fatalf("list = %+v", list)
	}

	var one SessionView
	if code := getJSON(t, srv.URL+"/api/sessions/"+st.ID(), &one); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if one.Width != 352 || one.Height != 288 || one.State != "running" {
		t.Errorf("session = %+v", one)
	}

	if code := getJSON(t, srv.URL+"/api/sessions/missing", nil); code != http.StatusNotFound {
		t.Errorf("missing session status = %d", code)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+st.ID(), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	select {
	case <-st.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session not cancelled")
	}
	if st.Session.Reason() != player.CancelUser {
		t.Errorf("reason = %v, want user", st.Session.Reason())
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+st.ID(), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp.StatusCode)
	}
}

func TestIngestEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	var views []IngestView
	if code := getJSON(t, srv.URL+"/api/ingest", &views); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(views) != 1 || views[0].Key != "live/cam1" {
		t.Errorf("views = %+v", views)
	}
}

func TestCORSHeader(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestStartShutsDown(t *testing.T) {
	t.Parallel()
	s := NewServer(stream.NewManager(nil), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Start did not return")
	}
}
