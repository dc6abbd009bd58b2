package pager

import "errors"

// Sentinel errors for the paged record engine. The public tissueroll
// package re-exports ErrInvalid, ErrAlreadyDeleted, ErrInvalidRecord and
// ErrClosing as the same values, so callers never need to import this
// package directly to use errors.Is.
var (
	ErrInvalid        = errors.New("pager: invalid database file")
	ErrAlreadyDeleted = errors.New("pager: record already deleted")
	ErrNotFound       = errors.New("pager: record not found")
	ErrInvalidRecord  = errors.New("pager: invalid record id")
	ErrClosing        = errors.New("pager: database is closing")
)
