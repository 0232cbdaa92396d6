// Package store persists review cases, sessions, shields, and calibration
// history behind a single interface with SQLite and Postgres backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// CaseFilter specifies criteria for listing review cases.
type CaseFilter struct {
	State    model.ReviewState `json:"state,omitempty"`
	VendorID string            `json:"vendor_id,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Review cases
	SaveCase(ctx context.Context, c model.ReviewCase, audit []model.StateTransition) error
	GetCase(ctx context.Context, caseID string) (*model.ReviewCase, []model.StateTransition, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]model.ReviewCase, error)

	// Review sessions
	SaveSession(ctx context.Context, s model.ReviewSession) error
	ListSessions(ctx context.Context) ([]model.ReviewSession, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)

	// Cleanup shields, scoped per vendor
	SaveShields(ctx context.Context, vendorID string, shields []model.CleanupShield) error
	GetShields(ctx context.Context, vendorID string) ([]model.CleanupShield, error)

	// Calibration history, append-only
	AppendCalibrationPoints(ctx context.Context, points []model.CalibrationDataPoint) error
	LoadCalibrationPoints(ctx context.Context, vendorID string) ([]model.CalibrationDataPoint, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the backend named by the config. SQLite is the default and
// needs nothing but a file path.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
