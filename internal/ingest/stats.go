package ingest

import (
	"fmt"
	"time"
)

// Stats tracks timing statistics for profiling an ingest.
type Stats struct {
	// ReadTime is total time spent reading, decompressing and coercing rows.
	ReadTime time.Duration

	// SchemaTime is the time spent replacing the destination table.
	SchemaTime time.Duration

	// WriteTime is total time spent appending chunks.
	WriteTime time.Duration

	// Rows is the total number of rows written.
	Rows int64

	// Chunks is the number of chunks written.
	Chunks int
}

// String returns a formatted summary of the stats.
func (s *Stats) String() string {
	total := s.TotalTime()
	if total == 0 {
		return "no data"
	}
	return fmt.Sprintf("read=%.1fs (%.0f%%), schema=%.1fs (%.0f%%), write=%.1fs (%.0f%%), rows=%d, chunks=%d",
		s.ReadTime.Seconds(), float64(s.ReadTime)/float64(total)*100,
		s.SchemaTime.Seconds(), float64(s.SchemaTime)/float64(total)*100,
		s.WriteTime.Seconds(), float64(s.WriteTime)/float64(total)*100,
		s.Rows, s.Chunks)
}

// TotalTime returns the sum of all timing components.
func (s *Stats) TotalTime() time.Duration {
	return s.ReadTime + s.SchemaTime + s.WriteTime
}

// RowsPerSecond calculates the throughput.
func (s *Stats) RowsPerSecond() float64 {
	total := s.TotalTime()
	if total == 0 {
		return 0
	}
	return float64(s.Rows) / total.Seconds()
}
