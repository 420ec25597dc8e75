package parse

import (
	"errors"
	"fmt"

	"tidbyt.dev/transit/model"
)

var (
	ErrMalformedRow         = errors.New("malformed row")
	ErrUnresolvedReference  = errors.New("unresolved reference")
	ErrTransactionFailure   = errors.New("transaction failure")
	ErrUnknownTable         = errors.New("unknown table")
	ErrMissingRequiredTable = errors.New("missing required table")
)

// A row that can't be decoded. Row is the line number within the
// table, with the header on line 1.
type MalformedRowError struct {
	Kind   model.EntityKind
	Row    int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s row %d: malformed %s: %s", e.Kind, e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s row %d: malformed row: %s", e.Kind, e.Row, e.Reason)
}

func (e *MalformedRowError) Is(target error) bool {
	return target == ErrMalformedRow
}

// A natural key that hasn't been compiled (yet).
type UnresolvedReferenceError struct {
	Kind    model.EntityKind
	Row     int
	RefKind model.EntityKind
	Key     string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s row %d: unknown %s '%s'", e.Kind, e.Row, e.RefKind, e.Key)
}

func (e *UnresolvedReferenceError) Is(target error) bool {
	return target == ErrUnresolvedReference
}

// The store failed while writing a table.
type TransactionError struct {
	Kind model.EntityKind
	Row  int
	Err  error
}

func (e *TransactionError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s row %d: %s", e.Kind, e.Row, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailure
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
