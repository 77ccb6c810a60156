// Package progress prints per-chunk ingest progress.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Options configures a Tracker.
type Options struct {
	// Out receives the progress lines. Defaults to os.Stdout.
	Out io.Writer
	// Spinner, when set, receives a live row-count spinner (usually os.Stderr).
	Spinner io.Writer
}

// Tracker tracks ingest progress
type Tracker struct {
	out       io.Writer
	bar       *progressbar.ProgressBar
	current   atomic.Int64
	chunks    atomic.Int64
	startTime time.Time
	lastChunk time.Time
}

// New creates a new progress tracker
func New(opts Options) *Tracker {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	now := time.Now()
	t := &Tracker{
		out:       out,
		startTime: now,
		lastChunk: now,
	}
	if opts.Spinner != nil {
		// Total is unknown while streaming, so the bar renders as a spinner.
		t.bar = progressbar.NewOptions64(
			-1,
			progressbar.OptionSetWriter(opts.Spinner),
			progressbar.OptionSetDescription("Ingesting"),
			progressbar.OptionShowBytes(false),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
	}
	return t
}

// TableCreated reports that the destination table was (re)created.
func (t *Tracker) TableCreated(table string) {
	t.printf("Table %s created\n", table)
}

// ChunkInserted reports that chunk seq with n rows was appended.
func (t *Tracker) ChunkInserted(seq int, n int) {
	t.current.Add(int64(n))
	t.chunks.Add(1)
	if t.bar != nil {
		t.bar.Add64(int64(n))
	}

	now := time.Now()
	took := now.Sub(t.lastChunk)
	t.lastChunk = now

	if seq == 1 {
		t.printf("Inserted first chunk: %d (%.3f s)\n", n, took.Seconds())
		return
	}
	t.printf("Inserted chunk: %d (%.3f s)\n", n, took.Seconds())
}

// Done reports completion and overall throughput.
func (t *Tracker) Done(table string) {
	if t.bar != nil {
		t.bar.Finish()
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := 0.0
	if elapsed > 0 {
		rowsPerSec = float64(t.current.Load()) / elapsed.Seconds()
	}

	t.printf("done ingesting to %s\n", table)
	t.printf("Ingested %d rows in %d chunks in %s (%.0f rows/sec)\n",
		t.current.Load(), t.chunks.Load(), elapsed.Round(time.Millisecond), rowsPerSec)
}

// Current returns the number of rows reported so far.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Chunks returns the number of chunks reported so far.
func (t *Tracker) Chunks() int64 {
	return t.chunks.Load()
}

func (t *Tracker) printf(format string, args ...any) {
	if t.bar != nil {
		// Move the spinner out of the way before printing a line.
		_ = t.bar.Clear()
	}
	fmt.Fprintf(t.out, format, args...)
}

// IsTerminal reports whether w is a terminal. Spinners redraw with carriage
// returns, so they only belong on one.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
