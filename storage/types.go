package storage

import "strings"

// IntegrationPRReview is the integration name of pull request reviews.
const IntegrationPRReview = "prReview"

// SourceID builds the source key a repository record is stored under,
// for example "github:main".
func SourceID(platform, branch string) string {
	return platform + ":" + branch
}

// Integration is the configuration of one enabled integration.
type Integration struct {
	UserID       string   `json:"userId" dynamodbav:"userId" yaml:"user_id"`
	Labels       []string `json:"labels,omitempty" dynamodbav:"labels,omitempty" yaml:"labels"`
	Instructions string   `json:"instructions,omitempty" dynamodbav:"instructions,omitempty" yaml:"instructions"`
	Comment      string   `json:"comment,omitempty" dynamodbav:"comment,omitempty" yaml:"comment"`
}

// RepositorySettings is the record of one repository branch.
type RepositorySettings struct {
	Repository   string                  `json:"repository" dynamodbav:"repository" yaml:"repository"`
	SourceID     string                  `json:"source_id" dynamodbav:"source_id" yaml:"source_id"`
	Integrations map[string]*Integration `json:"integrations" dynamodbav:"integrations" yaml:"integrations"`
}

// Integration returns the named integration, or nil when it is not enabled.
func (r *RepositorySettings) Integration(name string) *Integration {
	if r == nil {
		return nil
	}
	return r.Integrations[name]
}

// AuthorizedRepository is one repository a user has granted the bot.
type AuthorizedRepository struct {
	Repository string `json:"repository" dynamodbav:"repository" yaml:"repository"`
}

// UserSettings holds the review service key and the repositories a user authorized.
type UserSettings struct {
	UserID       string                 `json:"user_id" dynamodbav:"user_id" yaml:"user_id"`
	APIKey       string                 `json:"greptileApiKey" dynamodbav:"greptileApiKey" yaml:"api_key"`
	Repositories []AuthorizedRepository `json:"repositories" dynamodbav:"repositories" yaml:"repositories"`
}

// Authorizes reports whether repository is in the user's list. Names compare
// case-insensitively.
func (u *UserSettings) Authorizes(repository string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Repositories {
		if strings.EqualFold(r.Repository, repository) {
			return true
		}
	}
	return false
}
