package exception

import "github.com/yanun0323/errors"

// Run setup errors. Any of these aborts the run before input is read.
var (
	ErrConfiguration = errors.New("harness: invalid configuration")
	ErrSinkOpen      = errors.New("harness: open sink")
)

// Per-line and per-record errors, absorbed by the harness.
var (
	ErrMalformedRecord = errors.New("record: malformed")
	ErrDecodeFailure   = errors.New("decode: failure")
)

// Mid-run errors that abort the run.
var (
	ErrUnknownStrategy = errors.New("decode: unknown strategy")
	ErrSinkWrite       = errors.New("harness: write sink")
	ErrInputRead       = errors.New("harness: read input")
)
