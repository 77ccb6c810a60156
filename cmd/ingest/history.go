package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/johndauphine/taxi-ingest/internal/checkpoint"
)

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.State.Path == "" {
		return cli.Exit("run history is disabled: set state.path or --state-file", exitFailure)
	}

	state, err := checkpoint.New(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer state.Close()

	if runID := c.String("run"); runID != "" {
		return showRunDetails(c.App.Writer, state, runID)
	}

	runs, err := state.GetAllRuns()
	if err != nil {
		return err
	}
	out := c.App.Writer
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tTABLE\tROWS\tCHUNKS\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status,
			r.Table, r.Rows, r.Chunks, formatDuration(r.Duration()))
	}
	return tw.Flush()
}

func showRunDetails(out io.Writer, state checkpoint.Backend, runID string) error {
	run, err := state.GetRunByID(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return cli.Exit(fmt.Sprintf("run %s not found", runID), exitFailure)
	}

	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Source:   %s\n", run.Source)
	fmt.Fprintf(out, "Target:   %s %s\n", run.TargetType, run.Table)
	fmt.Fprintf(out, "Chunk:    %d rows\n", run.ChunkSize)
	fmt.Fprintf(out, "Rows:     %d in %d chunks\n", run.Rows, run.Chunks)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Duration: %s\n", formatDuration(run.Duration()))
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}

	chunks, err := state.GetRunChunks(runID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHUNK\tROWS\tINSERTED")
	for _, ch := range chunks {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", ch.Seq, ch.Rows, ch.InsertedAt.Local().Format("15:04:05.000"))
	}
	return tw.Flush()
}
