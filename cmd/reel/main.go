package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zsiec/reel/internal/config"
)

var version = "dev"

const usage = `usage: reel <command> [flags]

commands:
  play     play a file, "-" (stdin), srt://host:port?streamid=... or quic://host:port/key?fp=...
  listen   accept SRT publishers and play each stream
  publish  serve .ts files from a directory to QUIC pulls
  gen      write a synthetic test stream
  version  print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "play":
		err = runPlay(ctx, args)
	case "listen":
		err = runListen(ctx, args)
	case "publish":
		err = runPublish(ctx, args)
	case "gen":
		err = runGen(args)
	case "version":
		fmt.Println("reel", version)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		slog.Error("reel failed", "error", err)
		os.Exit(1)
	}
}

// commonFlags are shared by the commands that play or serve streams.
type commonFlags struct {
	configPath string
	apiAddr    string
	depth      int
	cancelMask uint
	stallTicks int
	pcmOut     string
	noDevice   bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.apiAddr, "api", "-", `HTTP API address ("" disables, "-" keeps the configured one)`)
	fs.IntVar(&c.depth, "depth", 0, "frame queue depth (0 keeps the configured one)")
	fs.UintVar(&c.cancelMask, "cancel-mask", 0, "button combination that cancels playback")
	fs.IntVar(&c.stallTicks, "stall-ticks", -1, "ticks to wait for data on live sources (-1 keeps the configured one)")
	fs.StringVar(&c.pcmOut, "pcm-out", "", "write the device's s16le PCM to this file")
	fs.BoolVar(&c.noDevice, "no-device", false, "discard audio output instead of writing PCM")
}

// load builds the configuration: defaults, then the file, then REEL_*
// variables, then flags. It installs the default logger.
func (c *commonFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if c.apiAddr != "-" {
		cfg.API.Addr = c.apiAddr
	}
	if c.depth > 0 {
		cfg.Playback.QueueDepth = c.depth
	}
	if c.cancelMask != 0 {
		cfg.Playback.CancelMask = uint32(c.cancelMask)
	}
	if c.stallTicks >= 0 {
		cfg.Playback.StallTicks = c.stallTicks
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))
	return cfg, nil
}

// openPCMOut opens the -pcm-out sink. The returned closer is never nil.
func (c *commonFlags) openPCMOut() (io.Writer, func() error, error) {
	if c.pcmOut == "" {
		return nil, func() error { return nil }, nil
	}
	f, err := os.Create(c.pcmOut)
	if err != nil {
		return nil, nil, fmt.Errorf("open PCM output: %w", err)
	}
	return f, f.Close, nil
}

// liveStallTicks is the stall tolerance used for network sources when the
// configuration leaves it at zero: two seconds of ticks.
func liveStallTicks(cfg *config.Config) int {
	if cfg.Playback.StallTicks > 0 {
		return cfg.Playback.StallTicks
	}
	return 2 * cfg.Playback.RefreshRate
}

func buildSessionDescription(width, height int, fps float64, hasAudio bool, sampleRate int) string {
	var parts []string
	if width > 0 && height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", width, height))
	}
	if fps > 0 {
		parts = append(parts, fmt.Sprintf("%g fps", fps))
	}
	if hasAudio {
		parts = append(parts, fmt.Sprintf("LPCM %d Hz", sampleRate))
	} else {
		parts = append(parts, "no audio")
	}
	return strings.Join(parts, " · ")
}

func parseSize(s string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q, want WxH", s)
	}
	return w, h, nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
