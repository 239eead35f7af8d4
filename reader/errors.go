package reader

import "errors"

var (
	// ErrUnknownSection is returned by GoToSection for a name that is not
	// part of the book.
	ErrUnknownSection = errors.New("reader: unknown section")

	// ErrBusy is returned when an operation is refused because a page turn
	// is in flight.
	ErrBusy = errors.New("reader: page turn in progress")

	// ErrInvalidSlots is returned by SetSlots for a slot count below one.
	ErrInvalidSlots = errors.New("reader: slot count must be at least 1")
)
