// Package local provides a YAML file implementation of the storage interface
// for development and single-tenant installs.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/reviewbot/reviewbot/storage"
)

// File is the layout of the settings file.
//
//	repositories:
//	  - repository: acme/api
//	    source_id: github:main
//	    integrations:
//	      prReview:
//	        user_id: local
//	        labels: [ai-review]
//	users:
//	  - user_id: local
//	    api_key: ...
//	    repositories:
//	      - repository: acme/api
type File struct {
	Repositories []*storage.RepositorySettings `yaml:"repositories"`
	Users        []*storage.UserSettings       `yaml:"users"`
}

// Local serves settings from a YAML file. Deletions are written back to the file.
type Local struct {
	path string

	mu   sync.RWMutex
	data File
}

// Open loads the settings file at path. A missing file yields an empty store.
func Open(path string) (*Local, error) {
	l := &Local{path: path}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(b, &l.data); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return l, nil
}

// GetRepository retrieves a repository record.
func (l *Local) GetRepository(ctx context.Context, repository, sourceID string) (*storage.RepositorySettings, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if r := l.findRepository(repository, sourceID); r != nil {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

// GetUserSettings retrieves the settings of a user.
func (l *Local) GetUserSettings(ctx context.Context, userID string) (*storage.UserSettings, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, u := range l.data.Users {
		if u.UserID == userID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

// DeleteIntegration removes one integration from a repository record and saves the file.
func (l *Local) DeleteIntegration(ctx context.Context, repository, sourceID, integration string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.findRepository(repository, sourceID)
	if r == nil || r.Integrations[integration] == nil {
		return nil
	}

	// Replace the map so copies handed out earlier are not mutated.
	integrations := make(map[string]*storage.Integration, len(r.Integrations))
	for name, in := range r.Integrations {
		if name != integration {
			integrations[name] = in
		}
	}
	r.Integrations = integrations

	b, err := yaml.Marshal(&l.data)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(l.path, b, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

func (l *Local) findRepository(repository, sourceID string) *storage.RepositorySettings {
	for _, r := range l.data.Repositories {
		if r.Repository == repository && r.SourceID == sourceID {
			return r
		}
	}
	return nil
}

// Verify Local implements Storage at compile time.
var _ storage.Storage = (*Local)(nil)
