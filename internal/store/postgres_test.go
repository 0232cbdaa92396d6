package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billscan/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetCase_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM review_cases WHERE id = \$1`).
		WithArgs("nonexistent-case").
		WillReturnError(pgx.ErrNoRows)

	_, _, err := s.GetCase(context.Background(), "nonexistent-case")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCase_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	caseJSON := []byte(`{"case_id":"c1","state":"pending","confidence":92}`)
	mock.ExpectQuery(`SELECT data FROM review_cases WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(caseJSON))
	mock.ExpectQuery(`SELECT entry FROM case_audit WHERE case_id = \$1 ORDER BY seq`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"entry"}).
			AddRow([]byte(`{"from_state":"pending","to_state":"in_review"}`)))

	c, audit, err := s.GetCase(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, c.State)
	require.Len(t, audit, 1)
	assert.Equal(t, model.StateInReview, audit[0].ToState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCase(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO review_cases`).
		WithArgs("c1", "pending", "ACME", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM case_audit WHERE case_id = \$1`).
		WithArgs("c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO case_audit`).
		WithArgs(pgxmock.AnyArg(), "c1", 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	c := model.ReviewCase{CaseID: "c1", State: model.StatePending, VendorID: "ACME"}
	audit := []model.StateTransition{{FromState: model.StatePending, ToState: model.StateInReview}}
	err := s.SaveCase(context.Background(), c, audit)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetShields_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM vendor_shields`).
		WithArgs("UNKNOWN").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	shields, err := s.GetShields(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, shields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetShields_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM vendor_shields`).
		WithArgs("ACME").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"id":"sh1","shield_type":"logo"}`)).
			AddRow([]byte(`{"id":"sh2","shield_type":"stamp"}`)))

	shields, err := s.GetShields(context.Background(), "ACME")
	require.NoError(t, err)
	require.Len(t, shields, 2)
	assert.Equal(t, "sh1", shields[0].ID)
	assert.Equal(t, model.ShieldStamp, shields[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveShields_BulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_vendor_shields"},
		[]string{"vendor_id", "shield_id", "data", "updated_at"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "vendor_shields"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.SaveShields(context.Background(), "ACME", []model.CleanupShield{{ID: "sh1"}, {ID: "sh2"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveShields_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.SaveShields(context.Background(), "ACME", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendCalibrationPoints_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"calibration_points"},
		[]string{"id", "vendor_id", "field_name", "predicted", "correct", "recorded_at"}).
		WillReturnResult(2)

	points := []model.CalibrationDataPoint{
		{PredictedConfidence: 90, ActualCorrect: true, FieldName: "total_amount", VendorID: "ACME"},
		{PredictedConfidence: 80, ActualCorrect: false, FieldName: "tax", VendorID: "ACME"},
	}
	err := s.AppendCalibrationPoints(context.Background(), points)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredSessions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM review_sessions WHERE expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredSessions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
