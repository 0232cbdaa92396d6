package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionService(timeout time.Duration) (*SessionService, *time.Time) {
	t := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := NewSessionService(timeout).WithClock(func() time.Time { return t })
	return svc, &t
}

func TestStartSession(t *testing.T) {
	svc, clk := newTestSessionService(30 * time.Minute)

	session := svc.StartSession("reviewer1")
	assert.NotEmpty(t, session.SessionID)
	assert.True(t, session.IsActive)
	assert.Equal(t, clk.Add(30*time.Minute), session.ExpiresAt)
}

func TestRecordReview_SlidesExpiry(t *testing.T) {
	svc, clk := newTestSessionService(30 * time.Minute)
	session := svc.StartSession("reviewer1")

	*clk = clk.Add(20 * time.Minute)
	require.NoError(t, svc.RecordReview(session.SessionID, "case-1", true, 45_000))

	got, err := svc.GetSession(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, clk.Add(30*time.Minute), got.ExpiresAt, "activity pushes expiry forward")

	// 25 minutes later the session is still alive only because of the slide.
	*clk = clk.Add(25 * time.Minute)
	require.NoError(t, svc.RecordReview(session.SessionID, "case-2", false, 30_000))

	got, err = svc.GetSession(session.SessionID)
	require.NoError(t, err)
	assert.Len(t, got.CasesReviewed, 2)
	assert.Equal(t, 1, got.CasesApproved)
	assert.Equal(t, 1, got.CasesRejected)
	assert.Equal(t, int64(75_000), got.TotalReviewTimeMS)
}

func TestRecordReview_ExpiredSession(t *testing.T) {
	svc, clk := newTestSessionService(30 * time.Minute)
	session := svc.StartSession("reviewer1")

	*clk = clk.Add(31 * time.Minute)
	err := svc.RecordReview(session.SessionID, "case-1", true, 1000)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRecordReview_UnknownSession(t *testing.T) {
	svc, _ := newTestSessionService(30 * time.Minute)
	err := svc.RecordReview("missing", "case-1", true, 1000)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEndSession_Stats(t *testing.T) {
	svc, clk := newTestSessionService(30 * time.Minute)
	session := svc.StartSession("reviewer1")

	for i := 0; i < 6; i++ {
		*clk = clk.Add(5 * time.Minute)
		require.NoError(t, svc.RecordReview(session.SessionID, "case", i%2 == 0, 60_000))
	}

	stats, err := svc.EndSession(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.CasesReviewed)
	assert.Equal(t, 3, stats.CasesApproved)
	assert.Equal(t, 3, stats.CasesRejected)
	assert.Equal(t, 30*time.Minute, stats.Duration)
	assert.InDelta(t, 12.0, stats.CasesPerHour, 0.001)

	got, err := svc.GetSession(session.SessionID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestResumeSession(t *testing.T) {
	svc, clk := newTestSessionService(30 * time.Minute)
	session := svc.StartSession("reviewer1")

	_, err := svc.EndSession(session.SessionID)
	require.NoError(t, err)

	*clk = clk.Add(10 * time.Minute)
	got, err := svc.ResumeSession(session.SessionID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, clk.Add(30*time.Minute), got.ExpiresAt)

	require.NoError(t, svc.RecordReview(session.SessionID, "case-1", true, 1000))
}

func TestResumeSession_AfterExpiry(t *testing.T) {
	svc, clk := newTestSessionService(30 * time.Minute)
	session := svc.StartSession("reviewer1")

	*clk = clk.Add(31 * time.Minute)
	_, err := svc.ResumeSession(session.SessionID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestCleanupExpired(t *testing.T) {
	svc, clk := newTestSessionService(30 * time.Minute)
	expired := svc.StartSession("reviewer1")

	*clk = clk.Add(20 * time.Minute)
	live := svc.StartSession("reviewer2")

	*clk = clk.Add(15 * time.Minute)
	removed := svc.CleanupExpired()
	assert.Equal(t, 1, removed)

	_, err := svc.GetSession(expired.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.GetSession(live.SessionID)
	assert.NoError(t, err)
}

func TestEndSession_DoesNotDelete(t *testing.T) {
	svc, _ := newTestSessionService(30 * time.Minute)
	session := svc.StartSession("reviewer1")

	_, err := svc.EndSession(session.SessionID)
	require.NoError(t, err)

	_, err = svc.GetSession(session.SessionID)
	assert.NoError(t, err, "ended sessions stay queryable until cleanup")
}

func TestZeroTimeoutDefaults(t *testing.T) {
	svc := NewSessionService(0)
	assert.Equal(t, 30*time.Minute, svc.timeout)
}
