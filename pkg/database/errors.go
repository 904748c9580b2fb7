package database

import "errors"

var (
	// ErrNilContext is returned when a decorator is built without an inner context.
	ErrNilContext = errors.New("database: inner context is nil")
	// ErrNilTransactor is returned when a decorator is built without an inner transactor.
	ErrNilTransactor = errors.New("database: inner transactor is nil")
	// ErrNotFound is returned when no object exists for an identifier.
	ErrNotFound = errors.New("database: object not found")
	// ErrNotDatabaseObject is returned for values the engine does not track.
	ErrNotDatabaseObject = errors.New("database: not a database object")
	// ErrUnknownType is returned when a type was never registered with the engine.
	ErrUnknownType = errors.New("database: unknown type")
	// ErrTypeMismatch is returned when a stored object does not have the requested type.
	ErrTypeMismatch = errors.New("database: type mismatch")
	// ErrReadOnly is returned when a read-only transaction attempts a write.
	ErrReadOnly = errors.New("database: transaction is read-only")
	// ErrRetryable marks a unit-of-work failure the engine may retry.
	ErrRetryable = errors.New("database: retryable failure")
	// ErrUnsupportedQuery is returned for query text an engine cannot run.
	ErrUnsupportedQuery = errors.New("database: unsupported query")
	// ErrTransactionDone is returned when a context is used after its transaction ended.
	ErrTransactionDone = errors.New("database: transaction already finished")
)
