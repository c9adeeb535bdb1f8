package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/reel/internal/api"
	"github.com/zsiec/reel/internal/ingest"
	srtingest "github.com/zsiec/reel/internal/ingest/srt"
	"github.com/zsiec/reel/internal/player"
	"github.com/zsiec/reel/internal/stream"
)

func runListen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	var cf commonFlags
	cf.register(fs)
	srtAddr := fs.String("srt", "", "SRT listen address (empty keeps the configured one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cf.pcmOut != "" {
		return fmt.Errorf("listen: -pcm-out is only supported by play")
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if *srtAddr != "" {
		cfg.SRT.ListenAddr = *srtAddr
	}

	opts := cfg.PlayerOptions()
	opts.NoDevice = cf.noDevice
	opts.Live = true
	opts.Scheduler.StallTicks = liveStallTicks(cfg)

	slog.Info("reel listening", "version", version, "srt", cfg.SRT.ListenAddr, "api", cfg.API.Addr)

	mgr := stream.NewManager(nil)
	g, ctx := errgroup.WithContext(ctx)

	// Created after the errgroup so sessions end when any component fails.
	registry := ingest.NewRegistry(func(key string, input io.Reader) {
		handleNewStream(ctx, mgr, key, input, opts)
	})

	srtSrv := srtingest.NewServer(cfg.SRT.ListenAddr, registry, nil)
	g.Go(func() error {
		return srtSrv.Start(ctx)
	})
	if cfg.API.Addr != "" {
		g.Go(func() error {
			return api.NewServer(mgr, registry, nil).Start(ctx, cfg.API.Addr)
		})
	}

	err = g.Wait()
	mgr.Wait()
	return err
}

// handleNewStream opens a session on a freshly published stream. A
// session that cannot open closes its input, which ends the publisher.
func handleNewStream(ctx context.Context, mgr *stream.Manager, key string, input io.Reader, opts player.Options) {
	slog.Info("new stream from ingest", "key", key)
	opts.Name = key
	sess, err := player.Open(input, opts)
	if err != nil {
		slog.Error("cannot play stream", "key", key, "error", err)
		return
	}
	if _, err := mgr.Start(ctx, sess, "srt://"+key); err != nil {
		slog.Error("cannot start session", "key", key, "error", err)
		sess.Close()
	}
}
