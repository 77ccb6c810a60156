package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndauphine/taxi-ingest/internal/dbconfig"
	"github.com/johndauphine/taxi-ingest/internal/driver"
	"github.com/johndauphine/taxi-ingest/internal/typemap"
)

func tripsTable() *driver.Table {
	return &driver.Table{
		Schema: "public",
		Name:   "yellow_taxi_data",
		Columns: []driver.Column{
			{Name: driver.IndexColumn, Type: typemap.Int64},
			{Name: "VendorID", Type: typemap.Int64, IsNullable: true},
			{Name: "tpep_pickup_datetime", Type: typemap.Timestamp, IsNullable: true},
			{Name: "trip_distance", Type: typemap.Float64, IsNullable: true},
			{Name: "store_and_fwd_flag", Type: typemap.String, IsNullable: true},
		},
	}
}

func newMockWriter(t *testing.T) (*Writer, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewWriterWithDB(mock, &dbconfig.TargetConfig{Type: "postgres"}), mock
}

func TestWriter_CreateTableSQL(t *testing.T) {
	w := NewWriterWithDB(nil, &dbconfig.TargetConfig{})
	got := w.CreateTableSQL(tripsTable())
	want := `CREATE TABLE "public"."yellow_taxi_data" (
    "index" bigint NOT NULL,
    "vendorid" bigint,
    "tpep_pickup_datetime" timestamp,
    "trip_distance" double precision,
    "store_and_fwd_flag" text
)`
	assert.Equal(t, want, got)
}

func TestWriter_ResetSchema(t *testing.T) {
	t.Run("drops and creates in one transaction", func(t *testing.T) {
		w, mock := newMockWriter(t)
		tbl := tripsTable()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "public"."yellow_taxi_data"`)).
			WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
		mock.ExpectExec(regexp.QuoteMeta(w.CreateTableSQL(tbl))).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectCommit()

		require.NoError(t, w.ResetSchema(context.Background(), tbl))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creates non-default schema first", func(t *testing.T) {
		w, mock := newMockWriter(t)
		tbl := tripsTable()
		tbl.Schema = "staging"

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "staging"`)).
			WillReturnResult(pgxmock.NewResult("CREATE SCHEMA", 0))
		mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "staging"."yellow_taxi_data"`)).
			WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
		mock.ExpectExec(`CREATE TABLE "staging"\."yellow_taxi_data"`).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectCommit()

		require.NoError(t, w.ResetSchema(context.Background(), tbl))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when create fails", func(t *testing.T) {
		w, mock := newMockWriter(t)
		tbl := tripsTable()

		mock.ExpectBegin()
		mock.ExpectExec(`DROP TABLE IF EXISTS`).
			WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
		mock.ExpectExec(`CREATE TABLE`).
			WillReturnError(errors.New("permission denied for schema public"))
		mock.ExpectRollback()

		err := w.ResetSchema(context.Background(), tbl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "creating table public.yellow_taxi_data")
		assert.Contains(t, err.Error(), "permission denied")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		w, mock := newMockWriter(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		err := w.ResetSchema(context.Background(), tripsTable())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "beginning transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWriter_WriteChunk(t *testing.T) {
	ts := time.Date(2021, 1, 1, 0, 30, 10, 0, time.UTC)
	rows := [][]any{
		{int64(0), int64(1), ts, 2.1, "N"},
		{int64(1), nil, nil, nil, nil},
	}
	cols := []string{"index", "vendorid", "tpep_pickup_datetime", "trip_distance", "store_and_fwd_flag"}

	t.Run("copies rows", func(t *testing.T) {
		w, mock := newMockWriter(t)
		mock.ExpectCopyFrom(pgx.Identifier{"public", "yellow_taxi_data"}, cols).WillReturnResult(2)

		n, err := w.WriteChunk(context.Background(), tripsTable(), rows)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short copy is an error", func(t *testing.T) {
		w, mock := newMockWriter(t)
		mock.ExpectCopyFrom(pgx.Identifier{"public", "yellow_taxi_data"}, cols).WillReturnResult(1)

		_, err := w.WriteChunk(context.Background(), tripsTable(), rows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wrote 1 of 2 rows")
	})

	t.Run("copy failure", func(t *testing.T) {
		w, mock := newMockWriter(t)
		mock.ExpectCopyFrom(pgx.Identifier{"public", "yellow_taxi_data"}, cols).
			WillReturnError(errors.New(`relation "yellow_taxi_data" does not exist`))

		_, err := w.WriteChunk(context.Background(), tripsTable(), rows)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "copy into public.yellow_taxi_data")
	})

	t.Run("empty chunk is a no-op", func(t *testing.T) {
		w, mock := newMockWriter(t)
		n, err := w.WriteChunk(context.Background(), tripsTable(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWriter_RowCount(t *testing.T) {
	w, mock := newMockWriter(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "public"."yellow_taxi_data"`)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(250000)))

	n, err := w.RowCount(context.Background(), tripsTable())
	require.NoError(t, err)
	assert.Equal(t, int64(250000), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_PingAndClose(t *testing.T) {
	w, mock := newMockWriter(t)
	mock.ExpectPing()
	mock.ExpectClose()

	assert.NoError(t, w.Ping(context.Background()))
	assert.Equal(t, "postgres", w.DBType())
	w.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}
