package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/johndauphine/taxi-ingest/internal/config"
	"github.com/johndauphine/taxi-ingest/internal/ingesterr"
	"github.com/johndauphine/taxi-ingest/internal/logging"
	"github.com/johndauphine/taxi-ingest/internal/util"
	"github.com/johndauphine/taxi-ingest/internal/version"

	_ "github.com/johndauphine/taxi-ingest/internal/driver/mssql"
	_ "github.com/johndauphine/taxi-ingest/internal/driver/postgres"
	_ "github.com/johndauphine/taxi-ingest/internal/driver/sqlite"
)

// Exit statuses by failure kind.
const (
	exitOK      = 0
	exitFailure = 1
	exitSource  = 2
	exitSchema  = 3
	exitStorage = 4
)

func main() {
	// A missing .env file is normal.
	_ = godotenv.Load()

	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logging.SetOutput(stderr)

	app := newApp(stdout, stderr)
	if err := app.Run(args); err != nil {
		logging.Error("%v", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch ingesterr.KindOf(err) {
	case ingesterr.KindSource:
		return exitSource
	case ingesterr.KindSchema:
		return exitSchema
	case ingesterr.KindStorage:
		return exitStorage
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) && coder.ExitCode() != 0 {
		return coder.ExitCode()
	}
	return exitFailure
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      version.Name,
		Usage:     version.Description,
		Version:   version.Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     ingestFlags(),
		Action:    runIngest,
		Commands: []*cli.Command{
			{
				Name:  "history",
				Usage: "List ingest runs, or view details of a specific run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
				},
				Action: showHistory,
			},
		},
		// Exit statuses are chosen by run, not by the cli package.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func ingestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to YAML configuration file",
			EnvVars: []string{"TAXI_INGEST_CONFIG"},
		},
		&cli.StringFlag{Name: "url", Usage: "Source location (http(s)://, s3://, file:// or a path); overrides the monthly URL"},
		&cli.StringFlag{Name: "url-prefix", Usage: "Release download prefix for the monthly file"},
		&cli.IntFlag{Name: "year", Usage: "Trip data year"},
		&cli.IntFlag{Name: "month", Usage: "Trip data month (1-12)"},
		&cli.StringFlag{Name: "delimiter", Usage: "Field delimiter"},
		&cli.DurationFlag{Name: "timeout", Usage: "HTTP download timeout (0 = none)"},
		&cli.StringFlag{Name: "s3-region", Usage: "AWS region for s3:// sources"},

		&cli.StringFlag{Name: "target-type", Usage: "Destination database: postgres, mssql or sqlite"},
		&cli.StringFlag{Name: "host", Usage: "Destination host"},
		&cli.IntFlag{Name: "port", Usage: "Destination port"},
		&cli.StringFlag{Name: "user", Usage: "Destination user"},
		&cli.StringFlag{Name: "password", Usage: "Destination password", EnvVars: []string{"PG_PASSWORD"}},
		&cli.StringFlag{Name: "db", Usage: "Destination database (SQLite: file path)"},
		&cli.StringFlag{Name: "schema", Usage: "Destination schema"},

		&cli.StringFlag{Name: "table", Usage: "Destination table (replaced on every run)"},
		&cli.IntFlag{Name: "chunk-size", Usage: "Rows per chunk"},
		&cli.BoolFlag{Name: "no-index", Usage: "Do not write the row index column"},
		&cli.StringFlag{Name: "parse-dates", Usage: "Comma-separated columns to read as timestamps"},
		&cli.StringFlag{Name: "types", Usage: "Column type overrides, e.g. extra=float64,airport_fee=float64"},

		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: text or json"},
		&cli.StringFlag{Name: "state-file", Usage: "SQLite run history file (empty disables history)"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Hide the progress spinner"},
	}
}

// loadConfig reads the config file, if any, and applies command-line
// overrides. Flags win over the file; the file wins over defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if c.IsSet("target-type") {
		cfg.SetTargetType(c.String("target-type"))
	}

	if c.IsSet("url") {
		cfg.Source.URL = c.String("url")
	}
	if c.IsSet("url-prefix") {
		cfg.Source.URLPrefix = c.String("url-prefix")
	}
	if c.IsSet("year") {
		cfg.Source.Year = c.Int("year")
	}
	if c.IsSet("month") {
		cfg.Source.Month = c.Int("month")
	}
	if c.IsSet("delimiter") {
		cfg.Source.Delimiter = c.String("delimiter")
	}
	if c.IsSet("timeout") {
		cfg.Source.Timeout = c.Duration("timeout")
	}
	if c.IsSet("s3-region") {
		cfg.Source.S3Region = c.String("s3-region")
	}

	if c.IsSet("host") {
		cfg.Target.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Target.Port = c.Int("port")
	}
	if c.IsSet("user") {
		cfg.Target.User = c.String("user")
	}
	if c.IsSet("password") {
		cfg.Target.Password = c.String("password")
	}
	if c.IsSet("db") {
		cfg.Target.Database = c.String("db")
	}
	if c.IsSet("schema") {
		cfg.Target.Schema = c.String("schema")
	}

	if c.IsSet("table") {
		cfg.Ingest.Table = c.String("table")
	}
	if c.IsSet("chunk-size") {
		cfg.Ingest.ChunkSize = c.Int("chunk-size")
	}
	if c.Bool("no-index") {
		off := false
		cfg.Ingest.IncludeIndex = &off
	}
	if c.IsSet("parse-dates") {
		cfg.Ingest.ParseDates = util.SplitCSV(c.String("parse-dates"))
	}
	if c.IsSet("types") {
		pairs, err := util.ParsePairs(c.String("types"))
		if err != nil {
			return nil, fmt.Errorf("--types: %w", err)
		}
		if cfg.Ingest.Types == nil {
			cfg.Ingest.Types = make(map[string]string, len(pairs))
		}
		for col, typ := range pairs {
			cfg.Ingest.Types[col] = typ
		}
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("state-file") {
		cfg.State.Path = c.String("state-file")
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

func configureLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Logging.Format)
	return nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
