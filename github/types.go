// Package github provides the GitHub App REST client and webhook payload types.
package github

import (
	"strings"
	"time"
)

// PullRequestEvent represents a pull_request webhook event.
type PullRequestEvent struct {
	Action       string        `json:"action"`
	Number       int           `json:"number"`
	PullRequest  *PullRequest  `json:"pull_request"`
	Label        *Label        `json:"label,omitempty"`
	Repository   *Repository   `json:"repository"`
	Installation *Installation `json:"installation"`
	Sender       *User         `json:"sender"`
}

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID      int64   `json:"id"`
	Number  int     `json:"number"`
	State   string  `json:"state"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Head    *Ref    `json:"head"`
	Base    *Ref    `json:"base"`
	User    *User   `json:"user"`
	Labels  []Label `json:"labels"`
	HTMLURL string  `json:"html_url"`
}

// LabelNames returns the names of the labels on the pull request.
func (pr *PullRequest) LabelNames() []string {
	return labelNames(pr.Labels)
}

// Ref represents a git reference (branch/commit).
type Ref struct {
	Ref  string      `json:"ref"`
	SHA  string      `json:"sha"`
	Repo *Repository `json:"repo,omitempty"`
}

// Repository represents a GitHub repository.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Owner         *User  `json:"owner"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

// User represents a GitHub user, organization or app.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

// IsBot reports whether the account is an app or bot account.
func (u *User) IsBot() bool {
	if u == nil {
		return false
	}
	return u.Type == "Bot" || strings.HasSuffix(u.Login, "[bot]")
}

// Installation represents a GitHub App installation.
type Installation struct {
	ID int64 `json:"id"`
}

// Label is an issue or pull request label.
type Label struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func labelNames(labels []Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names
}

// PullRequestFile represents a file changed in a pull request.
type PullRequestFile struct {
	SHA              string `json:"sha"`
	Filename         string `json:"filename"`
	Status           string `json:"status"` // added, removed, modified, renamed, copied, changed, unchanged
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Changes          int    `json:"changes"`
	Patch            string `json:"patch,omitempty"`
	PreviousFilename string `json:"previous_filename,omitempty"`
}

// ReviewComment is an inline comment inside a pull request review.
// StartLine and StartSide are set only for multi-line comments.
type ReviewComment struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Side      string `json:"side,omitempty"` // LEFT or RIGHT, defaults to RIGHT
	StartLine int    `json:"start_line,omitempty"`
	StartSide string `json:"start_side,omitempty"`
	Body      string `json:"body"`
}

// ReviewRequest represents a request to create a pull request review.
type ReviewRequest struct {
	CommitID string          `json:"commit_id,omitempty"`
	Body     string          `json:"body"`
	Event    string          `json:"event"` // APPROVE, REQUEST_CHANGES, COMMENT
	Comments []ReviewComment `json:"comments,omitempty"`
}

// Review represents a pull request review response.
type Review struct {
	ID          int64     `json:"id"`
	User        *User     `json:"user"`
	Body        string    `json:"body"`
	State       string    `json:"state"`
	HTMLURL     string    `json:"html_url"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// FileContent represents the content of a file from the GitHub API.
type FileContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Size     int    `json:"size"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

// ReviewCommentEvent represents a pull_request_review_comment webhook event.
type ReviewCommentEvent struct {
	Action       string              `json:"action"` // created, edited, deleted
	Comment      *PullRequestComment `json:"comment"`
	PullRequest  *PullRequest        `json:"pull_request"`
	Repository   *Repository         `json:"repository"`
	Installation *Installation       `json:"installation"`
	Sender       *User               `json:"sender"`
}

// PullRequestComment represents an inline comment on a pull request diff.
type PullRequestComment struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	CommitID string `json:"commit_id"`
	User     *User  `json:"user"`
	Body     string `json:"body"`
	HTMLURL  string `json:"html_url"`
}

// IssueCommentEvent represents an issue_comment webhook event.
// Conversation comments on a pull request arrive through this event.
type IssueCommentEvent struct {
	Action       string        `json:"action"` // created, edited, deleted
	Issue        *Issue        `json:"issue"`
	Comment      *IssueComment `json:"comment"`
	Repository   *Repository   `json:"repository"`
	Installation *Installation `json:"installation"`
	Sender       *User         `json:"sender"`
}

// Issue represents a GitHub issue (PRs are also issues).
type Issue struct {
	ID          int64        `json:"id"`
	Number      int          `json:"number"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	State       string       `json:"state"`
	User        *User        `json:"user"`
	Labels      []Label      `json:"labels"`
	PullRequest *IssuePRLink `json:"pull_request,omitempty"` // Non-nil if this issue is a PR
	HTMLURL     string       `json:"html_url"`
}

// IsPullRequest reports whether the issue is the conversation of a pull request.
func (i *Issue) IsPullRequest() bool {
	return i != nil && i.PullRequest != nil
}

// IssuePRLink contains PR-specific URLs when an issue is a PR.
type IssuePRLink struct {
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
}

// IssueComment represents a comment on an issue or PR.
type IssueComment struct {
	ID      int64  `json:"id"`
	User    *User  `json:"user"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// IssueCommentRequest is the body for creating an issue comment.
type IssueCommentRequest struct {
	Body string `json:"body"`
}

// IssueCommentResponse represents a created issue comment.
type IssueCommentResponse struct {
	ID      int64  `json:"id"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
	User    *User  `json:"user"`
}
