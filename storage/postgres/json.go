package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/reviewbot/reviewbot/storage"
)

// integrationsFromJSON parses the integrations column.
func integrationsFromJSON(s string) (map[string]*storage.Integration, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var integrations map[string]*storage.Integration
	if err := json.Unmarshal([]byte(s), &integrations); err != nil {
		return nil, fmt.Errorf("failed to parse integrations: %w", err)
	}
	return integrations, nil
}

// repositoriesFromJSON parses the repositories column. Both a list of objects
// and a list of plain names are accepted.
func repositoriesFromJSON(s string) ([]storage.AuthorizedRepository, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	var repos []storage.AuthorizedRepository
	if err := json.Unmarshal([]byte(s), &repos); err == nil {
		return repos, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, fmt.Errorf("failed to parse repositories: %w", err)
	}
	repos = make([]storage.AuthorizedRepository, 0, len(names))
	for _, n := range names {
		repos = append(repos, storage.AuthorizedRepository{Repository: n})
	}
	return repos, nil
}
