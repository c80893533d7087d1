package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/reviewbot/reviewbot/github"
	"github.com/reviewbot/reviewbot/gitlab"
	"github.com/reviewbot/reviewbot/reviewapi"
)

// GitHubAPI is the GitHub client surface used by a review session.
type GitHubAPI interface {
	GitHubReviewAPI
	InstallationToken(ctx context.Context, installationID int64) (string, error)
	FetchPullRequestFiles(ctx context.Context, installationID int64, owner, repo string, prNumber int) ([]github.PullRequestFile, error)
	FetchFileContent(ctx context.Context, installationID int64, owner, repo, path, ref string) (string, error)
}

// GitLabAPI is the GitLab client surface used by a review session.
type GitLabAPI interface {
	GitLabDiscussionAPI
	ListMergeRequestDiffs(ctx context.Context, project string, mr int) ([]gitlab.FileDiff, error)
	FetchFileContent(ctx context.Context, project, path, ref string) (string, error)
	BranchHead(ctx context.Context, project, branch string) (string, error)
}

// GitLabConnector opens a GitLab client for the token delivered with a hook.
type GitLabConnector func(token string) (GitLabAPI, error)

// Options tune the review pipeline.
type Options struct {
	// Concurrency is the number of files reviewed at once. Values below 1 mean sequential.
	Concurrency int
	// Exclude reports files that are never sent for review.
	Exclude func(path string) bool
	// GitLabBaseBranch overrides the comparison base for merge requests.
	GitLabBaseBranch string
	// GitLabLimiter paces discussion creation across sessions.
	GitLabLimiter *rate.Limiter
}

// Reviewer runs review sessions from fetched changes to posted comments.
type Reviewer struct {
	client  *Client
	github  GitHubAPI
	connect GitLabConnector
	opts    Options
	logger  *slog.Logger
}

// NewReviewer creates a Reviewer.
func NewReviewer(client *Client, gh GitHubAPI, connect GitLabConnector, opts Options, logger *slog.Logger) *Reviewer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Exclude == nil {
		opts.Exclude = func(string) bool { return false }
	}
	return &Reviewer{
		client:  client,
		github:  gh,
		connect: connect,
		opts:    opts,
		logger:  logger,
	}
}

// GitHubRequest is a pull request that passed the trigger policy.
type GitHubRequest struct {
	InstallationID int64
	Repository     string
	DefaultBranch  string
	PullRequest    *github.PullRequest
	Settings       Settings
}

// GitLabRequest is a merge request that passed the trigger policy.
type GitLabRequest struct {
	Token    string
	Event    *gitlab.MergeRequestEvent
	Settings Settings
}

// ReviewGitHub reviews a pull request and posts the result.
func (r *Reviewer) ReviewGitHub(ctx context.Context, req *GitHubRequest) (*Session, error) {
	pr := req.PullRequest
	if pr == nil || pr.Head == nil || pr.Base == nil {
		return nil, fmt.Errorf("pull request is missing head or base")
	}

	s := &Session{
		ID:             uuid.NewString(),
		Platform:       PlatformGitHub,
		Repository:     req.Repository,
		DefaultBranch:  req.DefaultBranch,
		Number:         pr.Number,
		Title:          pr.Title,
		Body:           pr.Body,
		SourceBranch:   pr.Head.Ref,
		TargetBranch:   pr.Base.Ref,
		BaseSHA:        pr.Base.SHA,
		HeadSHA:        pr.Head.SHA,
		StartSHA:       pr.Base.SHA,
		Settings:       req.Settings,
		InstallationID: req.InstallationID,
	}
	logger := r.logger.With("session_id", s.ID, "platform", s.Platform, "repo", s.Repository, "pr", s.Number)
	logger.Info("starting review", "head", s.HeadSHA)

	token, err := r.github.InstallationToken(ctx, s.InstallationID)
	if err != nil {
		return nil, err
	}
	s.PlatformToken = token

	files, err := r.github.FetchPullRequestFiles(ctx, s.InstallationID, s.Owner(), s.Name(), s.Number)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if r.opts.Exclude(f.Filename) {
			logger.Info("skipping excluded file", "file", f.Filename)
			continue
		}
		s.Files = append(s.Files, ChangedFile{
			Path:         f.Filename,
			PreviousPath: f.PreviousFilename,
			Status:       githubStatus(f.Status),
			Patch:        f.Patch,
		})
	}

	fetch := func(ctx context.Context, f ChangedFile) (string, error) {
		if f.Status == StatusRemoved {
			return "", nil
		}
		return r.github.FetchFileContent(ctx, s.InstallationID, s.Owner(), s.Name(), f.Path, s.HeadSHA)
	}
	scope := Scope{
		Remote:      reviewapi.RemoteGitHub,
		Repository:  s.Repository,
		Branch:      s.DefaultBranch,
		Credentials: reviewapi.Credentials{APIKey: s.Settings.APIKey, GitHubToken: token},
	}

	r.reviewFiles(ctx, s, scope, fetch, logger)
	r.summarize(ctx, s, scope, logger)

	result, err := NewGitHubPoster(r.github, logger).Post(ctx, s)
	if err != nil {
		return s, err
	}
	logger.Info("review complete", "files", len(s.Files), "comments", len(s.Comments), "fallback", result.Fallback)
	return s, nil
}

// ReviewGitLab reviews a merge request and posts the result.
func (r *Reviewer) ReviewGitLab(ctx context.Context, req *GitLabRequest) (*Session, error) {
	ev := req.Event
	if ev == nil || ev.Project == nil || ev.ObjectAttributes == nil {
		return nil, fmt.Errorf("merge request event is missing project or attributes")
	}
	attrs := ev.ObjectAttributes

	s := &Session{
		ID:            uuid.NewString(),
		Platform:      PlatformGitLab,
		Repository:    ev.Project.PathWithNamespace,
		DefaultBranch: ev.Project.DefaultBranch,
		Number:        attrs.IID,
		Title:         attrs.Title,
		Body:          attrs.Description,
		SourceBranch:  attrs.SourceBranch,
		TargetBranch:  attrs.TargetBranch,
		Settings:      req.Settings,
		PlatformToken: req.Token,
	}
	if attrs.LastCommit != nil {
		s.HeadSHA = attrs.LastCommit.ID
	}
	logger := r.logger.With("session_id", s.ID, "platform", s.Platform, "repo", s.Repository, "mr", s.Number)

	api, err := r.connect(req.Token)
	if err != nil {
		return nil, err
	}

	baseBranch := r.opts.GitLabBaseBranch
	if baseBranch == "" {
		baseBranch = s.TargetBranch
	}
	baseSHA, err := api.BranchHead(ctx, s.Repository, baseBranch)
	if err != nil {
		return nil, err
	}
	s.BaseSHA, s.StartSHA = baseSHA, baseSHA
	if s.HeadSHA == "" {
		if s.HeadSHA, err = api.BranchHead(ctx, s.Repository, s.SourceBranch); err != nil {
			return nil, err
		}
	}
	logger.Info("starting review", "base", s.BaseSHA, "head", s.HeadSHA)

	diffs, err := api.ListMergeRequestDiffs(ctx, s.Repository, s.Number)
	if err != nil {
		return nil, err
	}
	for _, d := range diffs {
		if r.opts.Exclude(d.NewPath) {
			logger.Info("skipping excluded file", "file", d.NewPath)
			continue
		}
		f := ChangedFile{Path: d.NewPath, Status: gitlabStatus(d), Patch: d.Diff}
		if d.OldPath != d.NewPath {
			f.PreviousPath = d.OldPath
		}
		s.Files = append(s.Files, f)
	}

	fetch := func(ctx context.Context, f ChangedFile) (string, error) {
		if f.Status == StatusRemoved {
			return "", nil
		}
		return api.FetchFileContent(ctx, s.Repository, f.Path, s.HeadSHA)
	}
	scope := Scope{
		Remote:      reviewapi.RemoteGitLab,
		Repository:  s.Repository,
		Branch:      s.SourceBranch,
		Credentials: reviewapi.Credentials{APIKey: s.Settings.APIKey, GitLabToken: req.Token},
	}

	r.reviewFiles(ctx, s, scope, fetch, logger)
	r.summarize(ctx, s, scope, logger)

	result, err := NewGitLabPoster(api, r.opts.GitLabLimiter, logger).Post(ctx, s)
	if err != nil {
		return s, err
	}
	logger.Info("review complete", "files", len(s.Files), "comments", len(s.Comments), "failed", result.Failed)
	return s, nil
}

type fileOutcome struct {
	comments []NormalizedComment
	summary  *FileSummary
}

// reviewFiles reviews every file of the session with bounded concurrency.
// A file that fails is logged and contributes nothing; results are merged in
// file order regardless of completion order.
func (r *Reviewer) reviewFiles(ctx context.Context, s *Session, scope Scope, fetch func(context.Context, ChangedFile) (string, error), logger *slog.Logger) {
	paths := make([]string, len(s.Files))
	for i, f := range s.Files {
		paths[i] = f.Path
	}

	outcomes := make([]fileOutcome, len(s.Files))
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))

	for i := range s.Files {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				logger.Warn("skipped file review", "file", s.Files[i].Path, "error", err)
				return nil
			}
			defer sem.Release(1)

			file := s.Files[i]
			content, err := fetch(gctx, file)
			if err != nil {
				logger.Warn("failed to fetch file content", "file", file.Path, "error", err)
			}
			file.Content = content

			raw, err := r.client.ReviewFile(gctx, scope, &FileContext{
				Platform:     s.Platform,
				Repository:   s.Repository,
				SourceBranch: s.SourceBranch,
				TargetBranch: s.TargetBranch,
				Title:        s.Title,
				Body:         s.Body,
				File:         file,
				OtherFiles:   paths,
				Instructions: s.Settings.Instructions,
			})
			if err != nil {
				logger.Error("failed to review file", "file", file.Path, "error", err)
				return nil
			}

			outcomes[i] = fileOutcome{
				comments: Normalize(file, raw, s.Platform),
				summary:  &FileSummary{Path: file.Path, Status: file.Status, Summary: raw.Summary},
			}
			logger.Info("reviewed file", "file", file.Path, "comments", len(outcomes[i].comments))
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		s.Comments = append(s.Comments, o.comments...)
		if o.summary != nil {
			s.Summaries = append(s.Summaries, *o.summary)
		}
	}
}

// summarize fills the overall comment. A failed summary is replaced with a
// fixed error sentence so the inline comments are still posted.
func (r *Reviewer) summarize(ctx context.Context, s *Session, scope Scope, logger *slog.Logger) {
	overall, err := r.client.ReviewOverall(ctx, scope, &OverallContext{
		Platform:     s.Platform,
		Repository:   s.Repository,
		SourceBranch: s.SourceBranch,
		TargetBranch: s.TargetBranch,
		Title:        s.Title,
		Body:         s.Body,
		Summaries:    s.Summaries,
	})
	if err != nil {
		logger.Error("failed to generate overall summary", "error", err)
		overall = SummaryErrorText
	}
	s.OverallComment = overall
}

func githubStatus(status string) FileStatus {
	switch status {
	case "added":
		return StatusAdded
	case "removed":
		return StatusRemoved
	case "renamed":
		return StatusRenamed
	default:
		return StatusModified
	}
}

func gitlabStatus(d gitlab.FileDiff) FileStatus {
	switch {
	case d.NewFile:
		return StatusAdded
	case d.DeletedFile:
		return StatusRemoved
	case d.RenamedFile:
		return StatusRenamed
	default:
		return StatusModified
	}
}
