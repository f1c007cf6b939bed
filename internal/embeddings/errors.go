package embeddings

import "errors"

var (
	// ErrDimensionMismatch indicates an inserted or queried vector whose
	// length does not match the store's fixed dimension. Non-retryable;
	// the caller must fix the input.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrConstraintViolation indicates a missing required field, such as
	// empty content. Non-retryable.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrInvalidThreshold indicates a similarity threshold outside [0, 1].
	// Out-of-range inputs are rejected, never clamped.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidLimit indicates a non-positive or excessive result limit.
	ErrInvalidLimit = errors.New("invalid result limit")

	// ErrInvalidMetadata indicates a metadata document that cannot be
	// represented by the supported value kinds.
	ErrInvalidMetadata = errors.New("invalid metadata")
)
