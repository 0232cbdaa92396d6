package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/db"
	"github.com/sells-group/billscan/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"upsert_case": `INSERT INTO review_cases (id, state, vendor_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
	"get_case":       `SELECT data FROM review_cases WHERE id = $1`,
	"get_audit":      `SELECT entry FROM case_audit WHERE case_id = $1 ORDER BY seq`,
	"upsert_session": `INSERT INTO review_sessions (id, data, expires_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
	"get_shields":    `SELECT data FROM vendor_shields WHERE vendor_id = $1 ORDER BY updated_at, shield_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk calibration imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS review_cases (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL DEFAULT 'pending',
	vendor_id  TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS case_audit (
	id      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id TEXT NOT NULL REFERENCES review_cases(id),
	seq     INTEGER NOT NULL,
	entry   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS review_sessions (
	id         TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS vendor_shields (
	vendor_id  TEXT NOT NULL,
	shield_id  TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (vendor_id, shield_id)
);

CREATE TABLE IF NOT EXISTS calibration_points (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	vendor_id   TEXT NOT NULL DEFAULT '',
	field_name  TEXT NOT NULL,
	predicted   DOUBLE PRECISION NOT NULL,
	correct     BOOLEAN NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_review_cases_state ON review_cases(state);
CREATE INDEX IF NOT EXISTS idx_review_cases_vendor ON review_cases(vendor_id);
CREATE INDEX IF NOT EXISTS idx_case_audit_case_id ON case_audit(case_id);
CREATE INDEX IF NOT EXISTS idx_review_sessions_expires ON review_sessions(expires_at);
CREATE INDEX IF NOT EXISTS idx_calibration_points_vendor ON calibration_points(vendor_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveCase(ctx context.Context, c model.ReviewCase, audit []model.StateTransition) error {
	caseJSON, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal case")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO review_cases (id, state, vendor_id, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		c.CaseID, string(c.State), c.VendorID, caseJSON, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert case %s", c.CaseID)
	}

	// Replace the audit log wholesale; undo can shrink it.
	if _, err := tx.Exec(ctx, `DELETE FROM case_audit WHERE case_id = $1`, c.CaseID); err != nil {
		return eris.Wrapf(err, "postgres: clear audit %s", c.CaseID)
	}
	for i, entry := range audit {
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit entry")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO case_audit (id, case_id, seq, entry) VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), c.CaseID, i, entryJSON,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert audit %s", c.CaseID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit case")
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (*model.ReviewCase, []model.StateTransition, error) {
	var caseJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM review_cases WHERE id = $1`, caseID).Scan(&caseJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, eris.Wrapf(ErrNotFound, "case %s", caseID)
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "postgres: get case %s", caseID)
	}

	var c model.ReviewCase
	if err := json.Unmarshal(caseJSON, &c); err != nil {
		return nil, nil, eris.Wrap(err, "postgres: unmarshal case")
	}

	rows, err := s.pool.Query(ctx, `SELECT entry FROM case_audit WHERE case_id = $1 ORDER BY seq`, caseID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "postgres: get audit %s", caseID)
	}
	defer rows.Close()

	var audit []model.StateTransition
	for rows.Next() {
		var entryJSON []byte
		if err := rows.Scan(&entryJSON); err != nil {
			return nil, nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		var entry model.StateTransition
		if err := json.Unmarshal(entryJSON, &entry); err != nil {
			return nil, nil, eris.Wrap(err, "postgres: unmarshal audit entry")
		}
		audit = append(audit, entry)
	}
	return &c, audit, eris.Wrap(rows.Err(), "postgres: audit iterate")
}

func (s *PostgresStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.ReviewCase, error) {
	query := `SELECT data FROM review_cases WHERE 1=1`
	var args []any

	if filter.State != "" {
		args = append(args, string(filter.State))
		query += ` AND state = $1`
	}
	if filter.VendorID != "" {
		args = append(args, filter.VendorID)
		query += ` AND vendor_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	var cases []model.ReviewCase
	for rows.Next() {
		var caseJSON []byte
		if err := rows.Scan(&caseJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case")
		}
		var c model.ReviewCase
		if err := json.Unmarshal(caseJSON, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal case")
		}
		cases = append(cases, c)
	}
	return cases, eris.Wrap(rows.Err(), "postgres: list cases iterate")
}

func (s *PostgresStore) SaveSession(ctx context.Context, session model.ReviewSession) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_sessions (id, data, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		session.SessionID, sessionJSON, session.ExpiresAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save session %s", session.SessionID)
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]model.ReviewSession, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM review_sessions`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.ReviewSession
	for rows.Next() {
		var sessionJSON []byte
		if err := rows.Scan(&sessionJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		var session model.ReviewSession
		if err := json.Unmarshal(sessionJSON, &session); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal session")
		}
		sessions = append(sessions, session)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM review_sessions WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired sessions")
	}
	return int(tag.RowsAffected()), nil
}

// SaveShields upserts the vendor's shield set row-per-shield via a temp-table
// bulk upsert, so a full set after a processing run lands in one round trip.
func (s *PostgresStore) SaveShields(ctx context.Context, vendorID string, shields []model.CleanupShield) error {
	rows := make([][]any, 0, len(shields))
	for _, sh := range shields {
		data, err := json.Marshal(sh)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal shield %s", sh.ID)
		}
		rows = append(rows, []any{vendorID, sh.ID, data, sh.UpdatedAt.UTC()})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "vendor_shields",
		Columns:      []string{"vendor_id", "shield_id", "data", "updated_at"},
		ConflictKeys: []string{"vendor_id", "shield_id"},
	}, rows)
	return eris.Wrapf(err, "postgres: save shields %s", vendorID)
}

func (s *PostgresStore) GetShields(ctx context.Context, vendorID string) ([]model.CleanupShield, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM vendor_shields WHERE vendor_id = $1 ORDER BY updated_at, shield_id`, vendorID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get shields %s", vendorID)
	}
	defer rows.Close()

	var shields []model.CleanupShield
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan shield")
		}
		var sh model.CleanupShield
		if err := json.Unmarshal(data, &sh); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal shield")
		}
		shields = append(shields, sh)
	}
	return shields, eris.Wrap(rows.Err(), "postgres: shields iterate")
}

// AppendCalibrationPoints loads calibration samples in bulk via COPY.
func (s *PostgresStore) AppendCalibrationPoints(ctx context.Context, points []model.CalibrationDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{uuid.New().String(), p.VendorID, p.FieldName, p.PredictedConfidence, p.ActualCorrect, now})
	}

	_, err := db.CopyFrom(ctx, s.pool, "calibration_points",
		[]string{"id", "vendor_id", "field_name", "predicted", "correct", "recorded_at"}, rows)
	return eris.Wrap(err, "postgres: append calibration points")
}

func (s *PostgresStore) LoadCalibrationPoints(ctx context.Context, vendorID string) ([]model.CalibrationDataPoint, error) {
	query := `SELECT vendor_id, field_name, predicted, correct FROM calibration_points`
	var args []any
	if vendorID != "" {
		query += ` WHERE vendor_id = $1`
		args = append(args, vendorID)
	}
	query += ` ORDER BY recorded_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load calibration points")
	}
	defer rows.Close()

	var points []model.CalibrationDataPoint
	for rows.Next() {
		var p model.CalibrationDataPoint
		if err := rows.Scan(&p.VendorID, &p.FieldName, &p.PredictedConfidence, &p.ActualCorrect); err != nil {
			return nil, eris.Wrap(err, "postgres: scan calibration point")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "postgres: calibration iterate")
}
