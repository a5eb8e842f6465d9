package match

import "errors"

var (
	ErrEventIDRequired = errors.New("event id is required")
	ErrInvalidState    = errors.New("invalid lifecycle state")
	ErrEventMismatch   = errors.New("snapshot does not belong to event")
)
