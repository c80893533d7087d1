// Package reviewapi is a client for the hosted code review service.
//
// The service answers a chat-style query scoped to one or more indexed
// repositories. Review calls ask for JSON mode, in which case the returned
// message is itself a JSON document encoded as a string.
package reviewapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// RemoteGitHub identifies repositories hosted on GitHub.
	RemoteGitHub = "github"
	// RemoteGitLab identifies repositories hosted on GitLab.
	RemoteGitLab = "gitlab"

	maxErrorBody = 2048
)

// Message is one turn of the query conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RepositoryRef scopes a query to an indexed repository.
type RepositoryRef struct {
	Remote     string `json:"remote"`
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Messages     []Message       `json:"messages"`
	Repositories []RepositoryRef `json:"repositories"`
	// Genius requests the slower, higher-effort mode.
	Genius bool `json:"genius"`
	// JSONMode asks the service to return Message as a JSON document.
	JSONMode bool `json:"jsonMode"`
}

// Source is a code location the service cited.
type Source struct {
	Repository string `json:"repository"`
	Remote     string `json:"remote"`
	Branch     string `json:"branch"`
	Filepath   string `json:"filepath"`
	LineStart  int    `json:"linestart"`
	LineEnd    int    `json:"lineend"`
	Summary    string `json:"summary"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	Message string   `json:"message"`
	Sources []Source `json:"sources,omitempty"`
}

// Credentials authenticate one query. APIKey is the caller's review service key;
// exactly one of GitHubToken or GitLabToken is forwarded so the service can read
// the repository.
type Credentials struct {
	APIKey      string
	GitHubToken string
	GitLabToken string
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("review service returned status %d: %s", e.StatusCode, e.Body)
}

// Client calls the review service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query sends one query and returns the decoded envelope. The message field is
// returned as-is; decoding a JSON-mode message is the caller's concern.
func (c *Client) Query(ctx context.Context, query *QueryRequest, creds Credentials) (*QueryResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	if creds.GitHubToken != "" {
		req.Header.Set("X-GitHub-Token", creds.GitHubToken)
	}
	if creds.GitLabToken != "" {
		req.Header.Set("X-GitLab-Token", creds.GitLabToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query review service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	return &out, nil
}
