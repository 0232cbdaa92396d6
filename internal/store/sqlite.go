package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/billscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS review_cases (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL DEFAULT 'pending',
	vendor_id   TEXT NOT NULL DEFAULT '',
	data        TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS case_audit (
	id         TEXT PRIMARY KEY,
	case_id    TEXT NOT NULL REFERENCES review_cases(id),
	seq        INTEGER NOT NULL,
	entry      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS review_sessions (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS vendor_shields (
	vendor_id TEXT PRIMARY KEY,
	shields   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS calibration_points (
	id          TEXT PRIMARY KEY,
	vendor_id   TEXT NOT NULL DEFAULT '',
	field_name  TEXT NOT NULL,
	predicted   REAL NOT NULL,
	correct     INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_cases_state ON review_cases(state);
CREATE INDEX IF NOT EXISTS idx_review_cases_vendor ON review_cases(vendor_id);
CREATE INDEX IF NOT EXISTS idx_case_audit_case_id ON case_audit(case_id);
CREATE INDEX IF NOT EXISTS idx_review_sessions_expires ON review_sessions(expires_at);
CREATE INDEX IF NOT EXISTS idx_calibration_points_vendor ON calibration_points(vendor_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCase(ctx context.Context, c model.ReviewCase, audit []model.StateTransition) error {
	caseJSON, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal case")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO review_cases (id, state, vendor_id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, data = excluded.data, updated_at = excluded.updated_at`,
		c.CaseID, string(c.State), c.VendorID, string(caseJSON), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert case %s", c.CaseID)
	}

	// The audit log is replaced wholesale; undo shrinks it, so append-only
	// writes would leave stale tails behind.
	if _, err := tx.ExecContext(ctx, `DELETE FROM case_audit WHERE case_id = ?`, c.CaseID); err != nil {
		return eris.Wrapf(err, "sqlite: clear audit %s", c.CaseID)
	}
	for i, entry := range audit {
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal audit entry")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO case_audit (id, case_id, seq, entry) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), c.CaseID, i, string(entryJSON),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert audit %s", c.CaseID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit case")
}

func (s *SQLiteStore) GetCase(ctx context.Context, caseID string) (*model.ReviewCase, []model.StateTransition, error) {
	var caseJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM review_cases WHERE id = ?`, caseID,
	).Scan(&caseJSON)
	if err == sql.ErrNoRows {
		return nil, nil, eris.Wrapf(ErrNotFound, "case %s", caseID)
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sqlite: get case %s", caseID)
	}

	var c model.ReviewCase
	if err := json.Unmarshal([]byte(caseJSON), &c); err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: unmarshal case")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM case_audit WHERE case_id = ? ORDER BY seq`, caseID,
	)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sqlite: get audit %s", caseID)
	}
	defer rows.Close()

	var audit []model.StateTransition
	for rows.Next() {
		var entryJSON string
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		var entry model.StateTransition
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, nil, eris.Wrap(err, "sqlite: unmarshal audit entry")
		}
		audit = append(audit, entry)
	}
	return &c, audit, eris.Wrap(rows.Err(), "sqlite: audit iterate")
}

func (s *SQLiteStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.ReviewCase, error) {
	query := `SELECT data FROM review_cases WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.VendorID != "" {
		query += ` AND vendor_id = ?`
		args = append(args, filter.VendorID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close()

	var cases []model.ReviewCase
	for rows.Next() {
		var caseJSON string
		if err := rows.Scan(&caseJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case")
		}
		var c model.ReviewCase
		if err := json.Unmarshal([]byte(caseJSON), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal case")
		}
		cases = append(cases, c)
	}
	return cases, eris.Wrap(rows.Err(), "sqlite: list cases iterate")
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session model.ReviewSession) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_sessions (id, data, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		session.SessionID, string(sessionJSON), session.ExpiresAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save session %s", session.SessionID)
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]model.ReviewSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM review_sessions`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.ReviewSession
	for rows.Next() {
		var sessionJSON string
		if err := rows.Scan(&sessionJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		var session model.ReviewSession
		if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal session")
		}
		sessions = append(sessions, session)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM review_sessions WHERE expires_at <= ?`, before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired sessions")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveShields(ctx context.Context, vendorID string, shields []model.CleanupShield) error {
	shieldsJSON, err := json.Marshal(shields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal shields")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vendor_shields (vendor_id, shields) VALUES (?, ?)
		 ON CONFLICT(vendor_id) DO UPDATE SET shields = excluded.shields`,
		vendorID, string(shieldsJSON),
	)
	return eris.Wrapf(err, "sqlite: save shields %s", vendorID)
}

func (s *SQLiteStore) GetShields(ctx context.Context, vendorID string) ([]model.CleanupShield, error) {
	var shieldsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT shields FROM vendor_shields WHERE vendor_id = ?`, vendorID,
	).Scan(&shieldsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get shields %s", vendorID)
	}

	var shields []model.CleanupShield
	if err := json.Unmarshal([]byte(shieldsJSON), &shields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal shields")
	}
	return shields, nil
}

func (s *SQLiteStore) AppendCalibrationPoints(ctx context.Context, points []model.CalibrationDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, p := range points {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO calibration_points (id, vendor_id, field_name, predicted, correct, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), p.VendorID, p.FieldName, p.PredictedConfidence, p.ActualCorrect, now,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert calibration point")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit calibration points")
}

func (s *SQLiteStore) LoadCalibrationPoints(ctx context.Context, vendorID string) ([]model.CalibrationDataPoint, error) {
	query := `SELECT vendor_id, field_name, predicted, correct FROM calibration_points`
	var args []any
	if vendorID != "" {
		query += ` WHERE vendor_id = ?`
		args = append(args, vendorID)
	}
	query += ` ORDER BY recorded_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load calibration points")
	}
	defer rows.Close()

	var points []model.CalibrationDataPoint
	for rows.Next() {
		var p model.CalibrationDataPoint
		if err := rows.Scan(&p.VendorID, &p.FieldName, &p.PredictedConfidence, &p.ActualCorrect); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan calibration point")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: calibration iterate")
}
