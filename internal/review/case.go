// Package review implements the human-review workflow over extracted
// documents: a case state machine with an append-only audit trail, queue
// queries for reviewers, and reviewer work sessions.
package review

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/model"
)

// allowedTransitions is the explicit adjacency set of the case state machine.
// Nothing is truly terminal: Archived means inactive, not immutable.
var allowedTransitions = map[model.ReviewState]map[model.ReviewState]bool{
	model.StatePending: {
		model.StateInReview: true,
		model.StateArchived: true,
	},
	model.StateInReview: {
		model.StateApproved: true,
		model.StateRejected: true,
		model.StatePending:  true,
		model.StateArchived: true,
	},
	model.StateApproved: {
		model.StateArchived: true,
		model.StateInReview: true,
	},
	model.StateRejected: {
		model.StateArchived: true,
		model.StateInReview: true,
	},
	model.StateArchived: {
		model.StateInReview: true,
	},
}

// caseEntry pairs a case with its audit log; the two are mutated together
// under the service lock and must never diverge.
type caseEntry struct {
	c     model.ReviewCase
	audit []model.StateTransition
}

// CaseService owns review cases for their whole lifetime. Safe for concurrent
// use; transitions on the same case serialize on the service lock.
type CaseService struct {
	mu    sync.RWMutex
	cases map[string]*caseEntry
	now   func() time.Time
}

// NewCaseService creates an empty CaseService.
func NewCaseService() *CaseService {
	return &CaseService{
		cases: make(map[string]*caseEntry),
		now:   time.Now,
	}
}

// WithClock substitutes the time source; intended for tests.
func (s *CaseService) WithClock(now func() time.Time) *CaseService {
	s.now = now
	return s
}

// CreateCase registers a newly extracted document in StatePending.
func (s *CaseService) CreateCase(fields []model.ExtractedField, validation *model.ValidationResult, confidence float64, vendorID, vendorName string) model.ReviewCase {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := model.ReviewCase{
		CaseID:     uuid.NewString(),
		State:      model.StatePending,
		VendorID:   vendorID,
		VendorName: vendorName,
		Fields:     fields,
		Validation: validation,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.cases[c.CaseID] = &caseEntry{c: c}

	zap.L().Info("review: case created",
		zap.String("case_id", c.CaseID),
		zap.Float64("confidence", confidence),
		zap.String("vendor", vendorName),
	)
	return c
}

// Restore installs a persisted case and its audit log, e.g. at startup.
func (s *CaseService) Restore(c model.ReviewCase, audit []model.StateTransition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]model.StateTransition, len(audit))
	copy(cp, audit)
	s.cases[c.CaseID] = &caseEntry{c: c, audit: cp}
}

// Get returns a copy of the case.
func (s *CaseService) Get(caseID string) (model.ReviewCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cases[caseID]
	if !ok {
		return model.ReviewCase{}, ErrCaseNotFound
	}
	return entry.c, nil
}

// Transition moves a case to a new state, appending an audit entry in the
// same critical section so the log and the state cannot diverge.
func (s *CaseService) Transition(caseID string, to model.ReviewState, userID, reason string) (model.ReviewCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cases[caseID]
	if !ok {
		return model.ReviewCase{}, ErrCaseNotFound
	}

	from := entry.c.State
	if !allowedTransitions[from][to] {
		return model.ReviewCase{}, &InvalidTransitionError{From: from, To: to}
	}

	now := s.now()
	entry.c.State = to
	entry.c.UpdatedAt = now
	if to == model.StateApproved || to == model.StateRejected {
		entry.c.ReviewedBy = userID
		reviewedAt := now
		entry.c.ReviewedAt = &reviewedAt
	}
	entry.audit = append(entry.audit, model.StateTransition{
		FromState: from,
		ToState:   to,
		Timestamp: now,
		UserID:    userID,
		Reason:    reason,
	})

	zap.L().Info("review: case transitioned",
		zap.String("case_id", caseID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("user", userID),
	)
	return entry.c, nil
}

// UndoLastTransition restores the from-state of the most recent audit entry
// and removes that entry. Single-level undo, not a history rewind.
func (s *CaseService) UndoLastTransition(caseID string) (model.ReviewCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cases[caseID]
	if !ok {
		return model.ReviewCase{}, ErrCaseNotFound
	}
	if len(entry.audit) == 0 {
		return model.ReviewCase{}, ErrNoTransitions
	}

	last := entry.audit[len(entry.audit)-1]
	entry.audit = entry.audit[:len(entry.audit)-1]
	entry.c.State = last.FromState
	entry.c.UpdatedAt = s.now()
	return entry.c, nil
}

// AuditLog returns a copy of the case's transition history.
func (s *CaseService) AuditLog(caseID string) ([]model.StateTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cases[caseID]
	if !ok {
		return nil, ErrCaseNotFound
	}
	out := make([]model.StateTransition, len(entry.audit))
	copy(out, entry.audit)
	return out, nil
}

// Cases returns a copy of every case; the queue service filters and sorts it.
func (s *CaseService) Cases() []model.ReviewCase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ReviewCase, 0, len(s.cases))
	for _, entry := range s.cases {
		out = append(out, entry.c)
	}
	return out
}

// IsInvalidTransition reports whether err is a transition-table rejection.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
