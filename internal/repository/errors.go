package repository

import "errors"

// Common repository errors
var (
	// ErrDocumentNotFound is returned when a document is not found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrShareNotFound is returned when no access grant exists for a user
	ErrShareNotFound = errors.New("share not found")
)
