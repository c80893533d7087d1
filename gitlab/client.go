package gitlab

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const (
	// DefaultBaseURL is the gitlab.com REST API.
	DefaultBaseURL = "https://gitlab.com/api/v4"

	diffsPerPage = 100
	maxDiffPages = 30
)

// Client calls the GitLab API with a single access token. The bot receives the
// token with each hook, so a Client lives for one review session.
type Client struct {
	api *gitlab.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL, token string, opts ...gitlab.ClientOptionFunc) (*Client, error) {
	opts = append([]gitlab.ClientOptionFunc{gitlab.WithBaseURL(baseURL)}, opts...)
	api, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Client{api: api}, nil
}

// ListMergeRequestDiffs returns every changed file of a merge request, following pagination.
func (c *Client) ListMergeRequestDiffs(ctx context.Context, project string, mr int) ([]FileDiff, error) {
	var all []FileDiff
	opt := &gitlab.ListMergeRequestDiffsOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: diffsPerPage},
	}

	for i := 0; i < maxDiffPages; i++ {
		diffs, resp, err := c.api.MergeRequests.ListMergeRequestDiffs(project, mr, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list merge request diffs: %w", err)
		}
		for _, d := range diffs {
			all = append(all, FileDiff{
				OldPath:     d.OldPath,
				NewPath:     d.NewPath,
				Diff:        d.Diff,
				NewFile:     d.NewFile,
				RenamedFile: d.RenamedFile,
				DeletedFile: d.DeletedFile,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return all, nil
}

// FetchFileContent returns the raw content of a file at ref.
// A missing file yields an empty string and no error.
func (c *Client) FetchFileContent(ctx context.Context, project, path, ref string) (string, error) {
	file, resp, err := c.api.RepositoryFiles.GetFile(project, path, &gitlab.GetFileOptions{
		Ref: gitlab.Ptr(ref),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}

	if file.Encoding != "base64" {
		return file.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(file.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return string(decoded), nil
}

// BranchHead returns the SHA of the commit at the tip of a branch.
func (c *Client) BranchHead(ctx context.Context, project, branch string) (string, error) {
	b, _, err := c.api.Branches.GetBranch(project, branch, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch branch %s: %w", branch, err)
	}
	if b.Commit == nil || b.Commit.ID == "" {
		return "", fmt.Errorf("branch %s has no commit", branch)
	}
	return b.Commit.ID, nil
}

// CreateMergeRequestNote posts a top-level note on a merge request.
func (c *Client) CreateMergeRequestNote(ctx context.Context, project string, mr int, body string) error {
	_, _, err := c.api.Notes.CreateMergeRequestNote(project, mr, &gitlab.CreateMergeRequestNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create merge request note: %w", err)
	}
	return nil
}

// CreateMergeRequestDiscussion starts a discussion anchored to a diff position.
func (c *Client) CreateMergeRequestDiscussion(ctx context.Context, project string, mr int, body string, pos Position) error {
	position := &gitlab.PositionOptions{
		BaseSHA:      gitlab.Ptr(pos.BaseSHA),
		HeadSHA:      gitlab.Ptr(pos.HeadSHA),
		StartSHA:     gitlab.Ptr(pos.StartSHA),
		PositionType: gitlab.Ptr("text"),
		OldPath:      gitlab.Ptr(pos.OldPath),
		NewPath:      gitlab.Ptr(pos.NewPath),
	}
	if pos.NewLine > 0 {
		position.NewLine = gitlab.Ptr(pos.NewLine)
	}
	if pos.OldLine > 0 {
		position.OldLine = gitlab.Ptr(pos.OldLine)
	}

	_, _, err := c.api.Discussions.CreateMergeRequestDiscussion(project, mr, &gitlab.CreateMergeRequestDiscussionOptions{
		Body:     gitlab.Ptr(body),
		Position: position,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to create merge request discussion: %w", err)
	}
	return nil
}
