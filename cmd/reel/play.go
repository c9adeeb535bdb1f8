package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reel/internal/api"
	"github.com/zsiec/reel/internal/ingest"
	quicingest "github.com/zsiec/reel/internal/ingest/quic"
	srtingest "github.com/zsiec/reel/internal/ingest/srt"
	"github.com/zsiec/reel/internal/player"
	"github.com/zsiec/reel/internal/stream"
)

func runPlay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	var cf commonFlags
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("play: expected exactly one source, got %d", fs.NArg())
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	raw := fs.Arg(0)

	pcm, closePCM, err := cf.openPCMOut()
	if err != nil {
		return err
	}
	defer closePCM()

	src, live, err := openSource(ctx, raw, slog.Default())
	if err != nil {
		return err
	}

	opts := cfg.PlayerOptions()
	opts.Name = raw
	opts.NoDevice = cf.noDevice
	opts.PCMOut = pcm
	if live {
		opts.Live = true
		opts.Scheduler.StallTicks = liveStallTicks(cfg)
	}
	sess, err := player.Open(src, opts)
	if err != nil {
		return err
	}
	snap := sess.Snapshot()
	slog.Info("playing", "source", raw, "session", sess.ID,
		"stream", buildSessionDescription(snap.Width, snap.Height, snap.Framerate, snap.HasAudio, cfg.Audio.SampleRate))

	mgr := stream.NewManager(nil)
	g, gctx := errgroup.WithContext(ctx)
	st, err := mgr.Start(gctx, sess, raw)
	if err != nil {
		sess.Close()
		return err
	}

	apiCtx, stopAPI := context.WithCancel(gctx)
	defer stopAPI()
	if cfg.API.Addr != "" {
		g.Go(func() error {
			return api.NewServer(mgr, nil, nil).Start(apiCtx, cfg.API.Addr)
		})
	}
	g.Go(func() error {
		defer stopAPI()
		return st.Err()
	})

	err = g.Wait()
	final := sess.Snapshot()
	slog.Info("playback finished",
		"reason", final.Reason,
		"uploads", final.Scheduler.Uploads,
		"refills", final.Ingest.Refills,
		"underruns", final.Audio.Underruns,
		"uptime", formatDuration(time.Since(st.StartedAt)))
	return err
}

// openSource resolves a play argument. Network sources are live: the
// scheduler tolerates stalls while they have not ended.
func openSource(ctx context.Context, raw string, log *slog.Logger) (io.Reader, bool, error) {
	switch {
	case strings.HasPrefix(raw, "srt://"):
		req, err := srtingest.ParseURL(raw)
		if err != nil {
			return nil, false, err
		}
		src, err := srtingest.Dial(ctx, req, log)
		return src, true, err
	case strings.HasPrefix(raw, "quic://"):
		req, err := quicingest.ParseURL(raw)
		if err != nil {
			return nil, false, err
		}
		src, err := quicingest.Dial(ctx, req, log)
		return src, true, err
	default:
		src, err := ingest.OpenFile(raw)
		if err != nil {
			return nil, false, fmt.Errorf("open source: %w", err)
		}
		return src, raw == "-", nil
	}
}
