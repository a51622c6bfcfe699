package scan

import "errors"

var (
	// ErrClosed is returned when a code is submitted after Close.
	ErrClosed = errors.New("scan: service closed")
	// ErrEmptyCode is returned for blank or whitespace-only submissions.
	ErrEmptyCode = errors.New("scan: empty code")
	// ErrDuplicate is returned when the dedup gate suppresses a code.
	ErrDuplicate = errors.New("scan: duplicate read")
	// ErrEmptyCart is returned when a flush finds nothing to persist.
	ErrEmptyCart = errors.New("scan: cart is empty")
)
