package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceID(t *testing.T) {
	assert.Equal(t, "github:main", SourceID("github", "main"))
	assert.Equal(t, "gitlab:develop", SourceID("gitlab", "develop"))
}

func TestRepositorySettingsIntegration(t *testing.T) {
	var missing *RepositorySettings
	assert.Nil(t, missing.Integration(IntegrationPRReview))

	r := &RepositorySettings{Integrations: map[string]*Integration{
		IntegrationPRReview: {UserID: "u1"},
	}}
	assert.Equal(t, "u1", r.Integration(IntegrationPRReview).UserID)
	assert.Nil(t, r.Integration("issueEnricher"))
}

func TestUserSettingsAuthorizes(t *testing.T) {
	u := &UserSettings{Repositories: []AuthorizedRepository{{Repository: "acme/api"}, {Repository: "acme/Web"}}}

	assert.True(t, u.Authorizes("acme/api"))
	assert.True(t, u.Authorizes("acme/web"))
	assert.False(t, u.Authorizes("acme/cli"))

	var none *UserSettings
	assert.False(t, none.Authorizes("acme/api"))
}
