package sched

import "errors"

var (
	// ErrClosed is returned by Do when the loop has been closed.
	ErrClosed = errors.New("sched: loop closed")

	// ErrVirtual is returned by Run on a loop created with NewVirtual.
	ErrVirtual = errors.New("sched: virtual loop cannot Run; use Drain or Advance")
)
