package match

import "errors"

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchFinished     = errors.New("match already finished")
	ErrNotHost           = errors.New("only the host can do that")
	ErrInvalidTransition = errors.New("invalid match state transition")
	ErrParkBusy          = errors.New("park already has an active match")
	ErrMatchFull         = errors.New("team is full")
	ErrInvalidTeam       = errors.New("unknown team")
	ErrPlayerNotInMatch  = errors.New("player is not in this match")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrTransactionFailed is retryable: the next location update re-attempts the capture
	ErrTransactionFailed = errors.New("capture failed, retry")

	// errNoChange aborts a state update that would not change anything
	errNoChange = errors.New("no change")
)
