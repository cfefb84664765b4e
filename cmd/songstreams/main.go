package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/YuminosukeSato/songstreams/config"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/pipeline"
)

var (
	name    = "songstreams"
	version = "0.3.0"
)

type args struct {
	Data      string  `help:"Path to the song CSV (default spotify-2023.csv)" arg:"-d"`
	Out       string  `help:"Output directory for charts, models and report.json (default out)" arg:"-o"`
	Config    string  `help:"Optional TOML configuration file" arg:"-c"`
	LogLevel  string  `help:"debug, info, warn or error" arg:"--log-level"`
	LogFormat string  `help:"json or console" arg:"--log-format"`
	NoPlots   bool    `help:"Skip chart rendering" arg:"--no-plots"`
	Seed      *uint64 `help:"Random seed for splits and models" arg:"-s"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", name, version)
}

func (args) Description() string {
	return `Predicts Spotify stream counts from song metadata with a linear model,
a neural network and gradient boosted trees, and reports which fits best.`
}

// resolve layers defaults, the config file and flags, in that order.
func resolve(a args) (*config.Config, error) {
	cfg := config.Default()
	if a.Config != "" {
		loaded, err := config.Load(a.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if a.Data != "" {
		cfg.Data.Path = a.Data
	}
	if a.Out != "" {
		cfg.Output.Dir = a.Out
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}
	if a.LogFormat != "" {
		cfg.Log.Format = a.LogFormat
	}
	if a.NoPlots {
		cfg.Output.Plots = false
	}
	if a.Seed != nil {
		cfg.Seed = *a.Seed
	}
	return cfg, nil
}

func run(a args) error {
	cfg, err := resolve(a)
	if err != nil {
		return errors.NewStageError(pipeline.StageConfig, err)
	}
	if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return errors.NewStageError(pipeline.StageConfig, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = pipeline.Run(ctx, cfg)
	return err
}

func main() {
	var a args
	arg.MustParse(&a)

	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}
