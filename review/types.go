package review

import "strings"

// Platform identifies the code host a session belongs to.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// ChangeKind says which version of a file a comment refers to.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeDelete ChangeKind = "delete"
	ChangeModify ChangeKind = "modify"
)

// FileStatus is the change status of a file in a change request.
type FileStatus string

const (
	StatusAdded    FileStatus = "added"
	StatusRemoved  FileStatus = "removed"
	StatusModified FileStatus = "modified"
	StatusRenamed  FileStatus = "renamed"
)

// ChangedFile is one file touched by a pull request or merge request.
type ChangedFile struct {
	Path         string
	PreviousPath string
	Status       FileStatus
	// Patch is the unified diff for this file. It may be empty for binary or very large files.
	Patch string
	// Content is the new version of the file, empty when it could not be fetched.
	Content string
}

// Lines splits the file content into lines. An empty file has no lines.
func (f ChangedFile) Lines() []string {
	if f.Content == "" {
		return nil
	}
	return strings.Split(f.Content, "\n")
}

// RawComment is a comment exactly as the review service returned it.
// Start and End are optional; ModifyType is only requested on platforms
// whose anchors need an explicit side.
type RawComment struct {
	Start      *int   `json:"start,omitempty"`
	End        *int   `json:"end,omitempty"`
	Comment    string `json:"comment"`
	ModifyType string `json:"modify_type,omitempty"`
}

// RawReviewResult is the decoded per-file review.
type RawReviewResult struct {
	Summary  string       `json:"summary"`
	Comments []RawComment `json:"comments"`
}

// NormalizedComment is a filtered comment with a resolved line span.
type NormalizedComment struct {
	FilePath string
	// OldPath is the path before a rename; empty when unchanged.
	OldPath   string
	Kind      ChangeKind
	LineStart int
	// LineEnd is zero for single-line comments, otherwise greater than LineStart.
	LineEnd int
	Body    string
}

// IsSpan reports whether the comment covers more than one line.
func (c NormalizedComment) IsSpan() bool {
	return c.LineEnd > c.LineStart
}

// FileSummary is the per-file summary fed into the overall comment.
type FileSummary struct {
	Path    string
	Status  FileStatus
	Summary string
}

// Settings are the integration settings resolved for one session.
type Settings struct {
	Labels        []string
	Instructions  string
	CustomComment string
	APIKey        string
}

// Session carries one review from the triggering event to the posted result.
type Session struct {
	ID       string
	Platform Platform
	// Repository is "owner/name" on GitHub and the project path on GitLab.
	Repository    string
	DefaultBranch string
	Number        int
	Title         string
	Body          string
	SourceBranch  string
	TargetBranch  string
	BaseSHA       string
	HeadSHA       string
	StartSHA      string
	Settings      Settings

	// GitHub posting coordinates.
	InstallationID int64
	// PlatformToken is forwarded to the review service so it can read the repository.
	PlatformToken string

	Files          []ChangedFile
	Comments       []NormalizedComment
	Summaries      []FileSummary
	OverallComment string
}

// Owner returns the first path segment of the repository.
func (s *Session) Owner() string {
	owner, _, _ := strings.Cut(s.Repository, "/")
	return owner
}

// Name returns everything after the first path segment of the repository.
func (s *Session) Name() string {
	_, name, _ := strings.Cut(s.Repository, "/")
	return name
}

// ReviewBody is the overall comment with the integration's custom prefix.
func (s *Session) ReviewBody() string {
	if s.Settings.CustomComment == "" {
		return s.OverallComment
	}
	return s.Settings.CustomComment + "\n" + s.OverallComment
}
