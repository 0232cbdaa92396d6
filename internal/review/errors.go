package review

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/model"
)

// Recoverable workflow errors: the caller re-fetches state (case errors) or
// starts a new session (session errors) and tries again.
var (
	ErrCaseNotFound    = eris.New("review: case not found")
	ErrSessionNotFound = eris.New("review: session not found")
	ErrSessionExpired  = eris.New("review: session expired")
	ErrNoTransitions   = eris.New("review: no transitions to undo")
)

// InvalidTransitionError reports a state change the transition table forbids.
type InvalidTransitionError struct {
	From model.ReviewState
	To   model.ReviewState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("review: invalid transition %s -> %s", e.From, e.To)
}
