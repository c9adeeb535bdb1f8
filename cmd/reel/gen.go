package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/zsiec/reel/internal/tsmux"
)

func runGen(args []string) error {
	def := tsmux.DefaultSynthConfig()
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	out := fs.String("o", "", `output file ("-" for stdout)`)
	duration := fs.Duration("duration", def.Duration, "stream duration")
	fps := fs.Float64("fps", def.FrameRate, "frame rate")
	size := fs.String("size", fmt.Sprintf("%dx%d", def.Width, def.Height), "picture size WxH")
	withAudio := fs.Bool("audio", def.Audio, "include an LPCM tone")
	rate := fs.Int("rate", def.SampleRate, "audio sample rate")
	channels := fs.Int("channels", def.Channels, "audio channels")
	tone := fs.Float64("tone", def.ToneHz, "tone frequency in Hz")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("gen: -o is required")
	}

	cfg := def
	var err error
	if cfg.Width, cfg.Height, err = parseSize(*size); err != nil {
		return err
	}
	cfg.Duration = *duration
	cfg.FrameRate = *fps
	cfg.Audio = *withAudio
	cfg.SampleRate = *rate
	cfg.Channels = *channels
	cfg.ToneHz = *tone

	var w io.Writer = os.Stdout
	closeOut := func() error { return nil }
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		w, closeOut = f, f.Close
	}
	bw := bufio.NewWriterSize(w, 64*1024)

	start := time.Now()
	if err := tsmux.WriteSynthetic(bw, cfg); err != nil {
		closeOut()
		return err
	}
	if err := bw.Flush(); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	slog.Info("stream written", "path", *out, "frames", cfg.Frames(), "audio", cfg.Audio, "took", formatDuration(time.Since(start)))
	return nil
}
