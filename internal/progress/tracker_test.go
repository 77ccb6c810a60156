package progress

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTrackerLines(t *testing.T) {
	var buf bytes.Buffer
	tr := New(Options{Out: &buf})

	tr.TableCreated("yellow_taxi_data")
	tr.ChunkInserted(1, 100000)
	tr.ChunkInserted(2, 100000)
	tr.ChunkInserted(3, 50000)
	tr.Done("yellow_taxi_data")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), buf.String())
	}

	prefixes := []string{
		"Table yellow_taxi_data created",
		"Inserted first chunk: 100000",
		"Inserted chunk: 100000",
		"Inserted chunk: 50000",
		"done ingesting to yellow_taxi_data",
		"Ingested 250000 rows in 3 chunks",
	}
	for i, p := range prefixes {
		if !strings.HasPrefix(lines[i], p) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], p)
		}
	}

	if tr.Current() != 250000 {
		t.Errorf("Current() = %d, want 250000", tr.Current())
	}
	if tr.Chunks() != 3 {
		t.Errorf("Chunks() = %d, want 3", tr.Chunks())
	}
}

func TestTrackerWithSpinner(t *testing.T) {
	var buf bytes.Buffer
	tr := New(Options{Out: &buf, Spinner: io.Discard})

	tr.TableCreated("trips")
	tr.ChunkInserted(1, 10)
	tr.Done("trips")

	if !strings.Contains(buf.String(), "Inserted first chunk: 10") {
		t.Errorf("missing chunk line in %q", buf.String())
	}
	if tr.Current() != 10 {
		t.Errorf("Current() = %d, want 10", tr.Current())
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil is not a terminal")
	}

	f, err := os.Create(filepath.Join(t.TempDir(), "stderr.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("a regular file is not a terminal")
	}
}
