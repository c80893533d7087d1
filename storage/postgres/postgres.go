// Package postgres provides a PostgreSQL implementation of the storage interface.
// This is intended for self-hosted deployments. The schema is managed outside
// the bot; it expects these tables:
//
//	repositories(repository TEXT, source_id TEXT, integrations JSONB, PRIMARY KEY (repository, source_id))
//	user_settings(user_id TEXT PRIMARY KEY, api_key TEXT, repositories JSONB)
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/reviewbot/reviewbot/storage"
)

// PostgreSQL provides storage operations using PostgreSQL.
type PostgreSQL struct {
	db *sql.DB
}

// New creates a new PostgreSQL storage instance.
func New(db *sql.DB) *PostgreSQL {
	return &PostgreSQL{db: db}
}

// NewFromDSN creates a new PostgreSQL storage instance from a connection string.
func NewFromDSN(ctx context.Context, dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// Close closes the database connection.
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// GetRepository retrieves a repository record.
func (p *PostgreSQL) GetRepository(ctx context.Context, repository, sourceID string) (*storage.RepositorySettings, error) {
	query := `
		SELECT repository, source_id, integrations
		FROM repositories
		WHERE repository = $1 AND source_id = $2
	`

	var settings storage.RepositorySettings
	var integrationsJSON sql.NullString

	err := p.db.QueryRowContext(ctx, query, repository, sourceID).Scan(
		&settings.Repository,
		&settings.SourceID,
		&integrationsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}

	settings.Integrations, err = integrationsFromJSON(integrationsJSON.String)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetUserSettings retrieves the settings of a user.
func (p *PostgreSQL) GetUserSettings(ctx context.Context, userID string) (*storage.UserSettings, error) {
	query := `
		SELECT user_id, api_key, repositories
		FROM user_settings
		WHERE user_id = $1
	`

	var settings storage.UserSettings
	var apiKey, repositoriesJSON sql.NullString

	err := p.db.QueryRowContext(ctx, query, userID).Scan(
		&settings.UserID,
		&apiKey,
		&repositoriesJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}

	settings.APIKey = apiKey.String
	settings.Repositories, err = repositoriesFromJSON(repositoriesJSON.String)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// DeleteIntegration removes one integration from a repository record.
func (p *PostgreSQL) DeleteIntegration(ctx context.Context, repository, sourceID, integration string) error {
	query := `
		UPDATE repositories
		SET integrations = integrations - $3
		WHERE repository = $1 AND source_id = $2
	`

	if _, err := p.db.ExecContext(ctx, query, repository, sourceID, integration); err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	return nil
}

// Verify PostgreSQL implements Storage at compile time.
var _ storage.Storage = (*PostgreSQL)(nil)
