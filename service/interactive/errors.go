package interactive

import "errors"

var (
	// ErrNotReady is returned when input is submitted for a RunJob whose inputs are not ready yet.
	ErrNotReady = errors.New("interactive: run job is not ready for input")
	// ErrAlreadySubmitted is returned when the RunJob left NOT_RUNNING, e.g. another submission won.
	ErrAlreadySubmitted = errors.New("interactive: input already submitted")
)
