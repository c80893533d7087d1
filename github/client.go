package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

const (
	// DefaultBaseURL is the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com"

	filesPerPage = 100
	maxFilePages = 30
)

// InstallationTransport authenticates requests as one app installation.
// *ghinstallation.Transport satisfies it.
type InstallationTransport interface {
	http.RoundTripper
	Token(ctx context.Context) (string, error)
}

// TransportFactory creates the transport for an installation.
type TransportFactory func(installationID int64) (InstallationTransport, error)

// Client provides methods to interact with the GitHub API as a GitHub App.
type Client struct {
	baseURL      string
	newTransport TransportFactory

	mu         sync.Mutex
	transports map[int64]InstallationTransport
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTransportFactory replaces the ghinstallation transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) {
		c.newTransport = f
	}
}

// NewClient creates a new GitHub API client.
// The privateKey should be the PEM-encoded private key of the GitHub App.
func NewClient(appID int64, privateKey []byte, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		transports: make(map[int64]InstallationTransport),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newTransport == nil {
		c.newTransport = func(installationID int64) (InstallationTransport, error) {
			tr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
			if err != nil {
				return nil, err
			}
			if c.baseURL != DefaultBaseURL {
				tr.BaseURL = c.baseURL
			}
			return tr, nil
		}
	}
	return c
}

// transport returns the cached installation transport, creating it on first use.
// ghinstallation refreshes the token inside the transport, so one per installation is enough.
func (c *Client) transport(installationID int64) (InstallationTransport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tr, ok := c.transports[installationID]; ok {
		return tr, nil
	}
	tr, err := c.newTransport(installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	c.transports[installationID] = tr
	return tr, nil
}

// getInstallationClient returns an HTTP client authenticated for the given installation.
func (c *Client) getInstallationClient(installationID int64) (*http.Client, error) {
	tr, err := c.transport(installationID)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: tr, Timeout: 30 * time.Second}, nil
}

// InstallationToken returns an access token for the installation. The review
// service uses it to read the repository.
func (c *Client) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	tr, err := c.transport(installationID)
	if err != nil {
		return "", err
	}
	token, err := tr.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get installation token: %w", err)
	}
	return token, nil
}

// do sends a request for the installation and decodes a JSON response into out.
// A nil out discards the body, and so does an accepted non-2xx status.
// okStatus lists the accepted status codes.
func (c *Client) do(ctx context.Context, installationID int64, method, path string, in, out any, action string, okStatus ...int) (int, error) {
	client, err := c.getInstallationClient(installationID)
	if err != nil {
		return 0, err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", action, err)
	}
	defer resp.Body.Close()

	accepted := false
	for _, s := range okStatus {
		if resp.StatusCode == s {
			accepted = true
			break
		}
	}
	if !accepted {
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("failed to %s: status %d, body: %s", action, resp.StatusCode, string(respBody))
	}

	if out != nil && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", action, err)
		}
	}
	return resp.StatusCode, nil
}

// FetchPullRequestFiles fetches every file changed in a pull request, following pagination.
func (c *Client) FetchPullRequestFiles(ctx context.Context, installationID int64, owner, repo string, prNumber int) ([]PullRequestFile, error) {
	var all []PullRequestFile
	for page := 1; page <= maxFilePages; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d", owner, repo, prNumber, filesPerPage, page)

		var files []PullRequestFile
		if _, err := c.do(ctx, installationID, http.MethodGet, path, nil, &files, "fetch files", http.StatusOK); err != nil {
			return nil, err
		}
		all = append(all, files...)
		if len(files) < filesPerPage {
			break
		}
	}
	return all, nil
}

// FetchFileContent fetches the content of a file from a repository.
// A missing file yields an empty string and no error.
func (c *Client) FetchFileContent(ctx context.Context, installationID int64, owner, repo, path, ref string) (string, error) {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, escapePath(path), url.QueryEscape(ref))

	var content FileContent
	status, err := c.do(ctx, installationID, http.MethodGet, apiPath, nil, &content, "fetch file", http.StatusOK, http.StatusNotFound)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", nil
	}

	if content.Encoding != "base64" {
		return "", fmt.Errorf("unsupported encoding: %s", content.Encoding)
	}

	// The API wraps base64 content at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return string(decoded), nil
}

// CreateReview posts a review on a pull request.
func (c *Client) CreateReview(ctx context.Context, installationID int64, owner, repo string, prNumber int, review *ReviewRequest) (*Review, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, prNumber)

	var created Review
	if _, err := c.do(ctx, installationID, http.MethodPost, path, review, &created, "create review", http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetPullRequest fetches a pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, installationID int64, owner, repo string, prNumber int) (*PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, prNumber)

	var pr PullRequest
	if _, err := c.do(ctx, installationID, http.MethodGet, path, nil, &pr, "fetch pull request", http.StatusOK); err != nil {
		return nil, err
	}
	return &pr, nil
}

// CreateIssueComment posts a comment on a PR (via the issues API).
func (c *Client) CreateIssueComment(ctx context.Context, installationID int64, owner, repo string, prNumber int, body string) (*IssueCommentResponse, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, prNumber)

	var comment IssueCommentResponse
	if _, err := c.do(ctx, installationID, http.MethodPost, path, IssueCommentRequest{Body: body}, &comment, "create comment", http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	return &comment, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
