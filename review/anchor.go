package review

import (
	"errors"
	"fmt"
)

// ErrInvalidAnchor is returned for comments that cannot be placed on the diff.
var ErrInvalidAnchor = errors.New("invalid comment anchor")

// maxAnchorLines bounds the lines a single GitHub comment may cover.
const maxAnchorLines = 20

// Side is the diff side a GitHub comment attaches to.
type Side string

const (
	SideLeft  Side = "LEFT"
	SideRight Side = "RIGHT"
)

// GitHubAnchor places a review comment on a pull request diff. StartLine and
// StartSide are only set for multi-line comments.
type GitHubAnchor struct {
	Path      string
	Side      Side
	Line      int
	StartLine int
	StartSide Side
}

// ToGitHubAnchor maps a normalized comment to a GitHub line anchor.
// Deleted content anchors on the LEFT side, everything else on the RIGHT.
func ToGitHubAnchor(c NormalizedComment) (GitHubAnchor, error) {
	if c.FilePath == "" {
		return GitHubAnchor{}, fmt.Errorf("%w: empty path", ErrInvalidAnchor)
	}
	if c.LineStart < 1 {
		return GitHubAnchor{}, fmt.Errorf("%w: %s: line %d", ErrInvalidAnchor, c.FilePath, c.LineStart)
	}

	side := SideRight
	if c.Kind == ChangeDelete {
		side = SideLeft
	}

	a := GitHubAnchor{Path: c.FilePath, Side: side, Line: c.LineStart}
	if c.IsSpan() {
		if c.LineEnd-c.LineStart+1 > maxAnchorLines {
			return GitHubAnchor{}, fmt.Errorf("%w: %s: span %d-%d exceeds %d lines",
				ErrInvalidAnchor, c.FilePath, c.LineStart, c.LineEnd, maxAnchorLines)
		}
		a.StartLine = c.LineStart
		a.StartSide = side
		a.Line = c.LineEnd
	}
	return a, nil
}

// PositionTypeText is the only GitLab position type the bot creates.
const PositionTypeText = "text"

// DiffRefs are the three commits a GitLab diff position is expressed against.
type DiffRefs struct {
	BaseSHA  string
	HeadSHA  string
	StartSHA string
}

// GitLabAnchor places a discussion on a merge request diff. A zero OldLine or
// NewLine means the field is unset; exactly one of them must be set.
type GitLabAnchor struct {
	PositionType string
	BaseSHA      string
	HeadSHA      string
	StartSHA     string
	OldPath      string
	NewPath      string
	OldLine      int
	NewLine      int
}

// Validate checks the anchor can be posted.
func (a GitLabAnchor) Validate() error {
	if (a.OldLine > 0) == (a.NewLine > 0) {
		return fmt.Errorf("%w: %s: exactly one of old_line and new_line must be set", ErrInvalidAnchor, a.NewPath)
	}
	if a.BaseSHA == "" || a.HeadSHA == "" || a.StartSHA == "" {
		return fmt.Errorf("%w: %s: missing diff refs", ErrInvalidAnchor, a.NewPath)
	}
	if a.OldPath == "" || a.NewPath == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidAnchor)
	}
	return nil
}

// ToGitLabAnchor maps a normalized comment to a GitLab text position.
// Added and modified content is addressed by new_line, deleted content by old_line.
func ToGitLabAnchor(c NormalizedComment, refs DiffRefs) (GitLabAnchor, error) {
	oldPath := c.OldPath
	if oldPath == "" {
		oldPath = c.FilePath
	}

	a := GitLabAnchor{
		PositionType: PositionTypeText,
		BaseSHA:      refs.BaseSHA,
		HeadSHA:      refs.HeadSHA,
		StartSHA:     refs.StartSHA,
		OldPath:      oldPath,
		NewPath:      c.FilePath,
	}
	switch c.Kind {
	case ChangeAdd, ChangeModify:
		a.NewLine = c.LineStart
	case ChangeDelete:
		a.OldLine = c.LineStart
	}

	if err := a.Validate(); err != nil {
		return GitLabAnchor{}, err
	}
	return a, nil
}
