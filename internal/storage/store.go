// Package storage persists synthesized audio artifacts and resolves them to
// URLs the telephony provider can fetch.
package storage

import "context"

// Store saves immutable audio artifacts under unique names.
type Store interface {
	// Save writes data under name and returns an externally fetchable URL.
	Save(ctx context.Context, name string, contentType string, data []byte) (string, error)
	Close() error
}
