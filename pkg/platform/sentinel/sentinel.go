package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: snapshot or record does not exist in a store
// - ErrInvalidState: entity in wrong state for requested operation (e.g. stale snapshot version)
// - ErrAlreadyFinalized: an audit trail or decision was frozen and cannot be mutated
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, schema violations), use pkg/domain-errors directly.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyFinalized = errors.New("already finalized")
	ErrUnavailable      = errors.New("unavailable")
)
