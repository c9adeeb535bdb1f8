package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zsiec/reel/internal/config"
)

func TestBuildSessionDescription(t *testing.T) {
	t.Parallel()
	tests := []struct {
		w, h     int
		fps      float64
		hasAudio bool
		want     string
	}{
		{352, 288, 25, true, "352x288 · 25 fps · LPCM 44100 Hz"},
		{640, 480, 29.97, false, "640x480 · 29.97 fps · no audio"},
		{0, 0, 0, false, "no audio"},
	}
	for _, tt := range tests {
		if got := buildSessionDescription(tt.w, tt.h, tt.fps, tt.hasAudio, 44100); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()
	w, h, err := parseSize("352x288")
	if err != nil || w != 352 || h != 288 {
		t.Errorf("parseSize = %d, %d, %v", w, h, err)
	}
	for _, bad := range []string{"", "352", "0x288", "axb"} {
		if _, _, err := parseSize(bad); err == nil {
			t.Errorf("parseSize(%q) succeeded", bad)
		}
	}
}

func TestLiveStallTicks(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if got := liveStallTicks(cfg); got != 120 {
		t.Errorf("default live stall ticks = %d, want 120", got)
	}
	cfg.Playback.StallTicks = 7
	if got := liveStallTicks(cfg); got != 7 {
		t.Errorf("configured stall ticks = %d, want 7", got)
	}
}

func TestOpenSourceFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "in.ts")
	if err := os.WriteFile(path, []byte{0x47}, 0o644); err != nil {
		t.Fatal(err)
	}
	src, live, err := openSource(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if live {
		t.Error("file source should not be live")
	}
	if c, ok := src.(interface{ Close() error }); ok {
		c.Close()
	}

	if _, _, err := openSource(context.Background(), filepath.Join(t.TempDir(), "missing.ts"), nil); err == nil {
		t.Error("missing file should fail")
	}
	if _, _, err := openSource(context.Background(), "srt://", nil); err == nil {
		t.Error("SRT URL without host should fail")
	}
	if _, _, err := openSource(context.Background(), "quic://host:1/", nil); err == nil {
		t.Error("QUIC URL without key should fail")
	}
}

func TestGenWritesStream(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "gen.ts")
	if err := runGen([]string{"-o", out, "-duration", "200ms", "-size", "176x144"}); err != nil {
		t.Fatalf("runGen: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 || info.Size()%188 != 0 {
		t.Errorf("output size %d is not a whole number of TS packets", info.Size())
	}
}
