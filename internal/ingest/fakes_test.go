package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/johndauphine/taxi-ingest/internal/driver"
)

// fakeWriter records what the loader asks of the destination. Rows are kept
// only when keepRows is set so large scenarios stay cheap.
type fakeWriter struct {
	keepRows bool

	resets     int
	table      *driver.Table
	chunkSizes []int
	rows       [][]any
	firstIdx   []any
	calls      []string

	failReset   error
	failOnChunk int
	failWrite   error

	// extraRows is added to RowCount, as if another writer touched the table.
	extraRows int64
	failCount error
	counts    int
}

func (w *fakeWriter) ResetSchema(_ context.Context, t *driver.Table) error {
	w.calls = append(w.calls, "reset")
	if w.failReset != nil {
		return w.failReset
	}
	w.resets++
	w.table = t
	w.chunkSizes = nil
	w.rows = nil
	w.firstIdx = nil
	return nil
}

func (w *fakeWriter) WriteChunk(_ context.Context, t *driver.Table, rows [][]any) (int64, error) {
	w.calls = append(w.calls, fmt.Sprintf("write:%d", len(rows)))
	if w.table == nil {
		return 0, errors.New("table does not exist")
	}
	if w.failOnChunk > 0 && len(w.chunkSizes)+1 == w.failOnChunk {
		return 0, w.failWrite
	}
	for _, row := range rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.Columns))
		}
	}
	w.chunkSizes = append(w.chunkSizes, len(rows))
	if len(rows) > 0 {
		w.firstIdx = append(w.firstIdx, rows[0][0])
	}
	if w.keepRows {
		w.rows = append(w.rows, rows...)
	}
	return int64(len(rows)), nil
}

func (w *fakeWriter) RowCount(context.Context, *driver.Table) (int64, error) {
	w.counts++
	if w.failCount != nil {
		return 0, w.failCount
	}
	n := w.extraRows
	for _, s := range w.chunkSizes {
		n += int64(s)
	}
	return n, nil
}

func (w *fakeWriter) Ping(context.Context) error { return nil }
func (w *fakeWriter) DBType() string             { return "fake" }
func (w *fakeWriter) Close()                     {}

// recordingReporter captures progress notifications as lines.
type recordingReporter struct {
	lines []string
}

func (r *recordingReporter) TableCreated(table string) {
	r.lines = append(r.lines, "created "+table)
}

func (r *recordingReporter) ChunkInserted(seq int, n int) {
	r.lines = append(r.lines, fmt.Sprintf("chunk %d: %d", seq, n))
}

func (r *recordingReporter) Done(table string) {
	r.lines = append(r.lines, "done "+table)
}

// numberedCSV returns a two-column file with n data rows: id,amount.
func numberedCSV(n int) string {
	var sb strings.Builder
	sb.WriteString("id,amount\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%d,%d.5\n", i, i)
	}
	return sb.String()
}

const taxiHeader = "VendorID,tpep_pickup_datetime,tpep_dropoff_datetime,passenger_count,trip_distance," +
	"RatecodeID,store_and_fwd_flag,PULocationID,DOLocationID,payment_type,fare_amount,extra,mta_tax," +
	"tip_amount,tolls_amount,improvement_surcharge,total_amount,congestion_surcharge\n"

const taxiSample = taxiHeader +
	"1,2021-01-01 00:30:10,2021-01-01 00:36:12,1,2.10,1,N,142,43,2,8,3,0.5,0,0,0.3,11.8,2.5\n" +
	"1,2021-01-01 00:51:20,2021-01-01 00:52:19,1,.20,1,N,238,151,2,3,0.5,0.5,0,0,0.3,4.3,0\n" +
	"2,2021-01-01 00:43:30,2021-01-01 01:11:06,1.0,14.70,1,N,132,165,1,42,0.5,0.5,8.65,0,0.3,51.95,0\n" +
	",2021-01-01 00:21:00,2021-01-01 00:39:00,,5.38,,,72,89,,22.71,2.75,0.5,0,0,0.3,26.26,0\n" +
	"2,2021-01-01 00:15:48,2021-01-01 00:31:01,0,10.74,1,N,138,132,1,32,0.5,0.5,7.22,0,0.3,43.27,2.5\n"
