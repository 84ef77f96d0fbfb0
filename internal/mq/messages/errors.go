package messages

import "errors"

var (
	ErrEmptyMessage   = errors.New("message payload is empty")
	ErrInvalidMessage = errors.New("invalid message")
)
