// Package storage defines the settings store the router reads integration
// settings from.
package storage

import (
	"context"
)

// Storage defines the interface for settings backends.
// Implementations must be safe for concurrent use by multiple goroutines.
// Lookups return nil and no error when the record does not exist.
type Storage interface {
	// Repository operations
	GetRepository(ctx context.Context, repository, sourceID string) (*RepositorySettings, error)
	DeleteIntegration(ctx context.Context, repository, sourceID, integration string) error

	// User operations
	GetUserSettings(ctx context.Context, userID string) (*UserSettings, error)
}
