package browser

import "errors"

var (
	// ErrSessionNotStarted is returned when an operation targets a
	// session id with no live tab. Only open_url creates sessions.
	ErrSessionNotStarted = errors.New("browser: session not started")

	// ErrElementNotFound is returned when a selector matches nothing
	// on the current page.
	ErrElementNotFound = errors.New("browser: element not found")

	// ErrTimeout is returned when an operation exceeds its deadline,
	// distinct from the element simply not existing.
	ErrTimeout = errors.New("browser: operation timed out")
)
