package reviewapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	var got QueryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "ghs_token", r.Header.Get("X-GitHub-Token"))
		assert.Empty(t, r.Header.Get("X-GitLab-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"{\"summary\":\"ok\",\"comments\":[]}","sources":[{"repository":"acme/api","filepath":"main.go"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	resp, err := client.Query(context.Background(), &QueryRequest{
		Messages: []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "usr"}},
		Repositories: []RepositoryRef{{
			Remote: RemoteGitHub, Repository: "acme/api", Branch: "main",
		}},
		Genius:   true,
		JSONMode: true,
	}, Credentials{APIKey: "key-1", GitHubToken: "ghs_token"})
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"ok","comments":[]}`, resp.Message)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "main.go", resp.Sources[0].Filepath)

	assert.True(t, got.Genius)
	assert.True(t, got.JSONMode)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, RepositoryRef{Remote: "github", Repository: "acme/api", Branch: "main"}, got.Repositories[0])
}

func TestQueryGitLabToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "glpat-1", r.Header.Get("X-GitLab-Token"))
		assert.Empty(t, r.Header.Get("X-GitHub-Token"))
		_, _ = w.Write([]byte(`{"message":"summary text"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Query(context.Background(), &QueryRequest{}, Credentials{APIKey: "k", GitLabToken: "glpat-1"})
	require.NoError(t, err)
	assert.Equal(t, "summary text", resp.Message)
}

func TestQueryStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Query(context.Background(), &QueryRequest{}, Credentials{APIKey: "k"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
}

func TestQueryInvalidEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Query(context.Background(), &QueryRequest{}, Credentials{APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode query response")
}
