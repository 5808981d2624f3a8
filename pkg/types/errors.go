package types

import "errors"

// Catalog error kinds. Catalog operations attach exactly one kind to every
// failure and keep the collaborator's error as the wrapped cause, so both
// match with errors.Is.
var (
	ErrMalformedIdentifier     = errors.New("malformed identifier")
	ErrCatalogProtocol         = errors.New("catalog protocol error")
	ErrCatalogTransport        = errors.New("catalog transport error")
	ErrMissingMetadataLocation = errors.New("table has no metadata location")
	ErrInvalidLocation         = errors.New("invalid metadata location")
	ErrMetadataUnavailable     = errors.New("metadata unavailable")
	ErrCorruptMetadata         = errors.New("corrupt metadata")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrTransactionCommitted    = errors.New("transaction already committed")
	ErrReloadAfterCommit       = errors.New("committed but reload failed")
	ErrInvalidUpdate           = errors.New("invalid metadata update")
)

// Collaborator errors. Transports and stores wrap these so the catalog can
// tell an expected outcome (missing, duplicate, stale pointer) from a failure.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrCommitConflict = errors.New("commit precondition failed")
	ErrInvalidRequest = errors.New("invalid request")
)

// Configuration errors.
var (
	ErrInvalidConfig     = errors.New("invalid catalog config")
	ErrWarehouseEmpty    = errors.New("warehouse must not be empty")
	ErrWarehouseRelative = errors.New("warehouse must be an absolute location with a scheme")
)

// Service lifecycle errors.
var (
	ErrAlreadyAttached = errors.New("service already attached")
	ErrDetached        = errors.New("service is detached")
)
