package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/taxi-ingest/internal/checkpoint"
	"github.com/johndauphine/taxi-ingest/internal/driver"
	"github.com/johndauphine/taxi-ingest/internal/ingest"
	"github.com/johndauphine/taxi-ingest/internal/ingesterr"
	"github.com/johndauphine/taxi-ingest/internal/logging"
	"github.com/johndauphine/taxi-ingest/internal/progress"
	"github.com/johndauphine/taxi-ingest/internal/source"
)

// pingTimeout bounds the connection check before any table is touched.
const pingTimeout = 30 * time.Second

func runIngest(c *cli.Context) error {
	if c.Args().Present() {
		return cli.Exit(fmt.Sprintf("unexpected argument %q", c.Args().First()), exitFailure)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}
	logging.Debug("configuration:\n%s", cfg.Summary())

	types, err := cfg.TypeMap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := driver.Open(&cfg.Target, driver.WriterOptions{})
	if err != nil {
		return ingesterr.Storage("connecting to "+cfg.Target.Type, err)
	}
	defer w.Close()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err = w.Ping(pingCtx)
	cancel()
	if err != nil {
		return ingesterr.Storage("checking connection to "+cfg.Target.Type, err)
	}

	popts := progress.Options{Out: c.App.Writer}
	if !c.Bool("quiet") && progress.IsTerminal(c.App.ErrWriter) {
		popts.Spinner = c.App.ErrWriter
	}
	opts := []ingest.Option{ingest.WithReporter(progress.New(popts))}

	if cfg.State.Path != "" {
		state, err := checkpoint.New(cfg.State.Path)
		if err != nil {
			return fmt.Errorf("opening run history: %w", err)
		}
		defer state.Close()
		opts = append(opts, ingest.WithHistory(state))
	}

	loader := ingest.New(w, ingest.Config{
		Table:        cfg.Ingest.Table,
		Schema:       cfg.Target.Schema,
		ChunkSize:    cfg.Ingest.ChunkSize,
		IncludeIndex: cfg.IncludeIndex(),
		Delimiter:    cfg.DelimiterRune(),
		TypeMap:      types,
		Open: source.OpenOptions{
			Timeout:  cfg.Source.Timeout,
			S3Region: cfg.Source.S3Region,
		},
		TargetType: cfg.Target.Type,
	}, opts...)

	logging.Debug("run id %s", loader.RunID())
	res, err := loader.Run(ctx, cfg.SourceURL())
	if err != nil {
		return err
	}
	logging.Debug("%s", res.Stats.String())
	return nil
}
