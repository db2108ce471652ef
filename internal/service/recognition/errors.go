package recognition

import "errors"

// Errors returned by channel implementations.
var (
	ErrAlreadyStarted = errors.New("recognition channel already started")
	ErrNotStarted     = errors.New("recognition channel not started")
	ErrUnsupported    = errors.New("recognition capability not available")
)
