package notify

import "errors"

var (
	ErrNilDependency = errors.New("notify: transport and session are required")
	ErrClosed        = errors.New("notify: channel is closed")
	ErrConnClosed    = errors.New("notify: connection closed")
	ErrEmptyKind     = errors.New("notify: empty event kind")
	ErrNilHandler    = errors.New("notify: nil handler")
)
