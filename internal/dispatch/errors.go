package dispatch

import "errors"

// Domain errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when starting a ticker twice.
	ErrAlreadyRunning = errors.New("dispatch: ticker already running")

	// ErrNotRunning is returned when stopping a ticker that never started.
	ErrNotRunning = errors.New("dispatch: ticker not running")
)
