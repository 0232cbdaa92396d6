package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "calibration_points", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"calibration_points"}, []string{"vendor_id", "predicted"}).WillReturnResult(3)

	rows := [][]any{{"ACME", 90.0}, {"ACME", 85.0}, {"GLOBEX", 70.0}}
	n, err := CopyFrom(context.Background(), mock, "calibration_points", []string{"vendor_id", "predicted"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"calibration_points"}, []string{"vendor_id"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"ACME"}}
	_, err = CopyFrom(context.Background(), mock, "calibration_points", []string{"vendor_id"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO calibration_points")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "vendor_shields"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "vendor_shields",
		ConflictKeys: []string{"id"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "vendor_shields",
		Columns: []string{"id"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_vendor_shields"}, []string{"id", "vendor_id", "data"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "vendor_shields"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	cfg := UpsertConfig{
		Table:        "vendor_shields",
		Columns:      []string{"id", "vendor_id", "data"},
		ConflictKeys: []string{"id"},
	}
	rows := [][]any{
		{"s1", "ACME", `{}`},
		{"s2", "ACME", `{}`},
	}
	n, err := BulkUpsert(context.Background(), mock, cfg, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_vendor_shields"}, []string{"id"}).WillReturnError(fmt.Errorf("boom"))
	mock.ExpectRollback()

	cfg := UpsertConfig{
		Table:        "vendor_shields",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}
	_, err = BulkUpsert(context.Background(), mock, cfg, [][]any{{"s1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}
