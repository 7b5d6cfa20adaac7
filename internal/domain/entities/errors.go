package entities

import "errors"

var (
	// ErrInvalidEventType is returned for events outside the known vocabulary.
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrInvalidBudget is returned for budgets outside low/mid/high.
	ErrInvalidBudget = errors.New("invalid budget range")
	// ErrEmbeddingUnavailable means no embedding model is configured or reachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrProviderUnavailable means a provider is not configured (e.g. missing token).
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNotImage is returned when fetched content is not a decodable image.
	ErrNotImage = errors.New("content is not an image")
)
