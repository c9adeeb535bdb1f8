package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/zsiec/reel/internal/certs"
	quicingest "github.com/zsiec/reel/internal/ingest/quic"
)

func runPublish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	cf := commonFlags{apiAddr: "-", stallTicks: -1}
	fs.StringVar(&cf.configPath, "config", "", "YAML config file")
	addr := fs.String("addr", "", "QUIC listen address (empty keeps the configured one)")
	dir := fs.String("dir", "", "directory to publish (empty keeps the configured one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.QUIC.ListenAddr = *addr
	}
	if *dir != "" {
		cfg.QUIC.Dir = *dir
	}

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(cfg.QUIC.CertValidity)
	if err != nil {
		return fmt.Errorf("generate cert: %w", err)
	}

	p := quicingest.NewPublisher(cfg.QUIC.Dir, cert.ServerConfig(quicingest.ALPN), nil)
	bound, err := p.Listen(cfg.QUIC.ListenAddr)
	if err != nil {
		return err
	}
	slog.Info("reel publishing",
		"version", version,
		"addr", bound.String(),
		"dir", cfg.QUIC.Dir,
		"fingerprint", cert.FingerprintHex(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)
	fmt.Printf("pull with: reel play 'quic://%s/<key>?fp=%s'\n", bound, cert.FingerprintHex())

	err = p.Serve(ctx)
	st := p.Stats()
	slog.Info("publisher stopped", "served", st.Served, "notFound", st.NotFound, "rejected", st.Rejected, "bytes", st.BytesSent)
	return err
}
