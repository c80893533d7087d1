package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewbot/reviewbot/storage"
)

const settingsYAML = `
repositories:
  - repository: acme/api
    source_id: github:main
    integrations:
      prReview:
        user_id: local
        labels: [ai-review]
        instructions: Focus on concurrency.
        comment: Automated review
users:
  - user_id: local
    api_key: key-123
    repositories:
      - repository: acme/api
`

func writeSettings(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settingsYAML), 0o600))
	return path
}

func TestLocalLookups(t *testing.T) {
	l, err := Open(writeSettings(t))
	require.NoError(t, err)
	ctx := context.Background()

	repo, err := l.GetRepository(ctx, "acme/api", "github:main")
	require.NoError(t, err)
	pr := repo.Integration(storage.IntegrationPRReview)
	require.NotNil(t, pr)
	assert.Equal(t, "local", pr.UserID)
	assert.Equal(t, []string{"ai-review"}, pr.Labels)
	assert.Equal(t, "Focus on concurrency.", pr.Instructions)
	assert.Equal(t, "Automated review", pr.Comment)

	missing, err := l.GetRepository(ctx, "acme/api", "github:develop")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user, err := l.GetUserSettings(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, "key-123", user.APIKey)
	assert.True(t, user.Authorizes("acme/api"))

	nobody, err := l.GetUserSettings(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, nobody)
}

func TestLocalDeleteIntegrationPersists(t *testing.T) {
	path := writeSettings(t)
	l, err := Open(path)
	require.NoError(t, err)
	ctx := context.Background()

	before, err := l.GetRepository(ctx, "acme/api", "github:main")
	require.NoError(t, err)

	require.NoError(t, l.DeleteIntegration(ctx, "acme/api", "github:main", storage.IntegrationPRReview))
	assert.NotNil(t, before.Integration(storage.IntegrationPRReview))

	reopened, err := Open(path)
	require.NoError(t, err)
	repo, err := reopened.GetRepository(ctx, "acme/api", "github:main")
	require.NoError(t, err)
	assert.Nil(t, repo.Integration(storage.IntegrationPRReview))

	assert.NoError(t, l.DeleteIntegration(ctx, "acme/none", "github:main", storage.IntegrationPRReview))
}

func TestOpenMissingFile(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	repo, err := l.GetRepository(context.Background(), "acme/api", "github:main")
	require.NoError(t, err)
	assert.Nil(t, repo)
}

func TestOpenInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repositories: [unclosed"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}
