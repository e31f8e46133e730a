// Package errors provides error handling for PTX.
//
// This package re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// hints and details) and defines the error kinds the run pipeline reports to
// callers. See kinds.go.
//
// Usage:
//
//	if err := store.Put(ctx, t); err != nil {
//	    return errors.Wrap(err, "failed to save template")
//	}
//
//	// Attach a kind to an error coming from a library
//	return errors.Mark(errors.Wrap(err, "render template"), errors.ErrTemplateRender)
//
//	// Classify at a boundary
//	switch errors.KindOf(err) { ... }
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// IsNotFoundError reports whether err carries one of the not-found kinds.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return IsAny(err, ErrTemplateNotFound, ErrDatasetNotFound, ErrJobNotFound)
}

// NewInvalidInputf creates an InvalidInput error with a formatted message
func NewInvalidInputf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidInput)
}
