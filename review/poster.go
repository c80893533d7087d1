package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/reviewbot/reviewbot/github"
	"github.com/reviewbot/reviewbot/gitlab"
)

// PostResult counts what a poster did with a session's comments.
type PostResult struct {
	Posted int
	// Skipped comments had no valid anchor and were not sent.
	Skipped int
	// Failed comments were rejected by the host.
	Failed int
	// Fallback is set when the batched review was replaced by one aggregate comment.
	Fallback bool
}

// GitHubReviewAPI is the part of the GitHub client the poster needs.
type GitHubReviewAPI interface {
	CreateReview(ctx context.Context, installationID int64, owner, repo string, prNumber int, review *github.ReviewRequest) (*github.Review, error)
	CreateIssueComment(ctx context.Context, installationID int64, owner, repo string, prNumber int, body string) (*github.IssueCommentResponse, error)
}

// GitHubPoster publishes a session as one batched pull request review.
type GitHubPoster struct {
	api    GitHubReviewAPI
	logger *slog.Logger
}

// NewGitHubPoster creates a GitHubPoster.
func NewGitHubPoster(api GitHubReviewAPI, logger *slog.Logger) *GitHubPoster {
	return &GitHubPoster{api: api, logger: logger}
}

// Post submits the overall comment and every anchored comment as a single
// review. If GitHub rejects the review, for example because one anchor does
// not resolve against the diff, every comment is rendered into one top-level
// comment instead so nothing is lost.
func (p *GitHubPoster) Post(ctx context.Context, s *Session) (*PostResult, error) {
	result := &PostResult{}

	comments := make([]github.ReviewComment, 0, len(s.Comments))
	for _, c := range s.Comments {
		anchor, err := ToGitHubAnchor(c)
		if err != nil {
			p.logger.Warn("skipping comment without a valid anchor", "file", c.FilePath, "error", err)
			result.Skipped++
			continue
		}
		comments = append(comments, github.ReviewComment{
			Path:      anchor.Path,
			Line:      anchor.Line,
			Side:      string(anchor.Side),
			StartLine: anchor.StartLine,
			StartSide: string(anchor.StartSide),
			Body:      c.Body,
		})
	}

	_, err := p.api.CreateReview(ctx, s.InstallationID, s.Owner(), s.Name(), s.Number, &github.ReviewRequest{
		CommitID: s.HeadSHA,
		Body:     s.ReviewBody(),
		Event:    "COMMENT",
		Comments: comments,
	})
	if err == nil {
		result.Posted = len(comments)
		p.logger.Info("posted review", "comments", result.Posted, "skipped", result.Skipped)
		return result, nil
	}

	p.logger.Warn("review rejected, posting a single aggregate comment", "comments", len(comments), "error", err)

	body := BuildAggregateComment(s.ReviewBody(), s.Comments)
	if _, fallbackErr := p.api.CreateIssueComment(ctx, s.InstallationID, s.Owner(), s.Name(), s.Number, body); fallbackErr != nil {
		return nil, fmt.Errorf("failed to post review: %w", errors.Join(err, fallbackErr))
	}

	p.logger.Info("posted aggregate comment", "comments", len(s.Comments))
	return &PostResult{Posted: len(s.Comments), Fallback: true}, nil
}

// BuildAggregateComment renders the summary followed by every comment grouped
// by file, in the order the files first appear. The "## Comments" section is
// only added when there is at least one comment.
func BuildAggregateComment(summary string, comments []NormalizedComment) string {
	if len(comments) == 0 {
		return summary
	}

	var order []string
	byFile := make(map[string][]NormalizedComment)
	for _, c := range comments {
		if _, seen := byFile[c.FilePath]; !seen {
			order = append(order, c.FilePath)
		}
		byFile[c.FilePath] = append(byFile[c.FilePath], c)
	}

	sections := make([]string, 0, len(order))
	for _, path := range order {
		var b strings.Builder
		fmt.Fprintf(&b, "**%s**", path)
		for _, c := range byFile[path] {
			if c.IsSpan() {
				fmt.Fprintf(&b, "\n- Lines %d - %d: %s", c.LineStart, c.LineEnd, c.Body)
			} else {
				fmt.Fprintf(&b, "\n- Line %d: %s", c.LineStart, c.Body)
			}
		}
		sections = append(sections, b.String())
	}

	return summary + "\n\n## Comments\n\n" + strings.Join(sections, "\n\n")
}

// GitLabDiscussionAPI is the part of the GitLab client the poster needs.
type GitLabDiscussionAPI interface {
	CreateMergeRequestNote(ctx context.Context, project string, mr int, body string) error
	CreateMergeRequestDiscussion(ctx context.Context, project string, mr int, body string, pos gitlab.Position) error
}

// GitLabPoster publishes each comment as its own merge request discussion.
type GitLabPoster struct {
	api     GitLabDiscussionAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGitLabPoster creates a GitLabPoster. A nil limiter posts without pacing.
func NewGitLabPoster(api GitLabDiscussionAPI, limiter *rate.Limiter, logger *slog.Logger) *GitLabPoster {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &GitLabPoster{api: api, limiter: limiter, logger: logger}
}

// Post creates the overall note and then one discussion per comment. Every
// comment is independent: an invalid anchor or a rejected discussion is logged
// and the remaining comments are still posted.
func (p *GitLabPoster) Post(ctx context.Context, s *Session) (*PostResult, error) {
	result := &PostResult{}

	if body := s.ReviewBody(); body != "" {
		if err := p.api.CreateMergeRequestNote(ctx, s.Repository, s.Number, body); err != nil {
			p.logger.Error("failed to post summary note", "error", err)
		}
	}

	refs := DiffRefs{BaseSHA: s.BaseSHA, HeadSHA: s.HeadSHA, StartSHA: s.StartSHA}
	for _, c := range s.Comments {
		anchor, err := ToGitLabAnchor(c, refs)
		if err != nil {
			p.logger.Warn("skipping comment without a valid anchor", "file", c.FilePath, "error", err)
			result.Skipped++
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("stopped posting discussions: %w", err)
		}

		err = p.api.CreateMergeRequestDiscussion(ctx, s.Repository, s.Number, c.Body, gitlab.Position{
			BaseSHA:  anchor.BaseSHA,
			HeadSHA:  anchor.HeadSHA,
			StartSHA: anchor.StartSHA,
			OldPath:  anchor.OldPath,
			NewPath:  anchor.NewPath,
			OldLine:  anchor.OldLine,
			NewLine:  anchor.NewLine,
		})
		if err != nil {
			p.logger.Error("failed to post discussion", "file", c.FilePath, "line", c.LineStart, "error", err)
			result.Failed++
			continue
		}
		result.Posted++
	}

	p.logger.Info("posted discussions", "posted", result.Posted, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}
