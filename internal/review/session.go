package review

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/model"
)

// SessionStats summarizes a finished (or running) session's throughput.
type SessionStats struct {
	CasesReviewed     int           `json:"cases_reviewed"`
	CasesApproved     int           `json:"cases_approved"`
	CasesRejected     int           `json:"cases_rejected"`
	CasesPerHour      float64       `json:"cases_per_hour"`
	TotalReviewTimeMS int64         `json:"total_review_time_ms"`
	Duration          time.Duration `json:"duration"`
}

// SessionService tracks reviewer work sessions with sliding expiry: every
// recorded review pushes ExpiresAt forward by the timeout window.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*model.ReviewSession
	timeout  time.Duration
	now      func() time.Time
}

// NewSessionService creates a SessionService with the given inactivity timeout.
func NewSessionService(timeout time.Duration) *SessionService {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionService{
		sessions: make(map[string]*model.ReviewSession),
		timeout:  timeout,
		now:      time.Now,
	}
}

// WithClock substitutes the time source; intended for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// StartSession opens a new active session for the user.
func (s *SessionService) StartSession(userID string) model.ReviewSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	session := model.ReviewSession{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		StartedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.timeout),
		IsActive:     true,
	}
	s.sessions[session.SessionID] = &session

	zap.L().Info("review: session started",
		zap.String("session_id", session.SessionID),
		zap.String("user", userID),
	)
	return session
}

// RecordReview logs one reviewed case and slides the expiry window forward.
func (s *SessionService) RecordReview(sessionID, caseID string, approved bool, reviewTimeMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	now := s.now()
	if !session.IsActive || now.After(session.ExpiresAt) {
		return ErrSessionExpired
	}

	session.CasesReviewed = append(session.CasesReviewed, caseID)
	if approved {
		session.CasesApproved++
	} else {
		session.CasesRejected++
	}
	session.TotalReviewTimeMS += reviewTimeMS
	session.LastActivity = now
	session.ExpiresAt = now.Add(s.timeout)
	return nil
}

// EndSession deactivates the session and returns its throughput stats. The
// session stays queryable until CleanupExpired removes it.
func (s *SessionService) EndSession(sessionID string) (SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return SessionStats{}, ErrSessionNotFound
	}

	now := s.now()
	session.IsActive = false
	session.LastActivity = now
	return s.stats(session, now), nil
}

// ResumeSession reactivates an ended session, valid only before its expiry.
func (s *SessionService) ResumeSession(sessionID string) (model.ReviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return model.ReviewSession{}, ErrSessionNotFound
	}
	now := s.now()
	if now.After(session.ExpiresAt) {
		return model.ReviewSession{}, ErrSessionExpired
	}

	session.IsActive = true
	session.LastActivity = now
	session.ExpiresAt = now.Add(s.timeout)
	return *session, nil
}

// GetSession returns a copy of the session.
func (s *SessionService) GetSession(sessionID string) (model.ReviewSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return model.ReviewSession{}, ErrSessionNotFound
	}
	return *session, nil
}

// Stats returns throughput stats without ending the session.
func (s *SessionService) Stats(sessionID string) (SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return SessionStats{}, ErrSessionNotFound
	}
	return s.stats(session, s.now()), nil
}

func (s *SessionService) stats(session *model.ReviewSession, now time.Time) SessionStats {
	duration := now.Sub(session.StartedAt)
	stats := SessionStats{
		CasesReviewed:     len(session.CasesReviewed),
		CasesApproved:     session.CasesApproved,
		CasesRejected:     session.CasesRejected,
		TotalReviewTimeMS: session.TotalReviewTimeMS,
		Duration:          duration,
	}
	if hours := duration.Hours(); hours > 0 {
		stats.CasesPerHour = float64(stats.CasesReviewed) / hours
	}
	return stats
}

// CleanupExpired removes sessions past their expiry outright and returns the
// count removed. This is the only operation that deletes sessions.
func (s *SessionService) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		zap.L().Info("review: expired sessions removed", zap.Int("count", removed))
	}
	return removed
}

// Sessions returns copies of all sessions, for persistence.
func (s *SessionService) Sessions() []model.ReviewSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ReviewSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out
}

// RestoreSession installs a persisted session, e.g. at startup.
func (s *SessionService) RestoreSession(session model.ReviewSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := session
	s.sessions[session.SessionID] = &cp
}
