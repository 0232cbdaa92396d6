package model

import "time"

// ReviewState is the lifecycle state of a review case.
type ReviewState string

const (
	StatePending  ReviewState = "pending"
	StateInReview ReviewState = "in_review"
	StateApproved ReviewState = "approved"
	StateRejected ReviewState = "rejected"
	StateArchived ReviewState = "archived"
)

// ReviewCase is a single extracted document moving through human review.
// Mutated only through validated state transitions; archived, never deleted.
type ReviewCase struct {
	CaseID     string            `json:"case_id"`
	State      ReviewState       `json:"state"`
	VendorID   string            `json:"vendor_id,omitempty"`
	VendorName string            `json:"vendor_name,omitempty"`
	Fields     []ExtractedField  `json:"fields"`
	Validation *ValidationResult `json:"validation_result,omitempty"`
	Confidence float64           `json:"confidence"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ReviewedBy string            `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
}

// StateTransition is one append-only audit entry. The audit log and the case
// state must never diverge.
type StateTransition struct {
	FromState ReviewState `json:"from_state"`
	ToState   ReviewState `json:"to_state"`
	Timestamp time.Time   `json:"timestamp"`
	UserID    string      `json:"user_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// ReviewSession tracks one reviewer's working session. Expiry slides forward on
// every recorded review.
type ReviewSession struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	StartedAt         time.Time `json:"started_at"`
	LastActivity      time.Time `json:"last_activity"`
	ExpiresAt         time.Time `json:"expires_at"`
	CasesReviewed     []string  `json:"cases_reviewed"`
	CasesApproved     int       `json:"cases_approved"`
	CasesRejected     int       `json:"cases_rejected"`
	TotalReviewTimeMS int64     `json:"total_review_time_ms"`
	IsActive          bool      `json:"is_active"`
}
