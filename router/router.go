package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reviewbot/reviewbot/config"
	"github.com/reviewbot/reviewbot/github"
	"github.com/reviewbot/reviewbot/review"
	"github.com/reviewbot/reviewbot/storage"
)

var (
	// ErrNoUserID means the integration record does not name its owner.
	ErrNoUserID = errors.New("no user id provided")
	// ErrNoAPIKey means the owner has no review service key.
	ErrNoAPIKey = errors.New("no api key provided")
	// ErrRepositoryNotAuthorized means the repository is not in the owner's repository list.
	ErrRepositoryNotAuthorized = errors.New("repository not in user repositories")
	// ErrNoGitLabToken means a merge request hook arrived without an access token.
	ErrNoGitLabToken = errors.New("no gitlab token provided")
)

// Reviewer runs review sessions. *review.Reviewer implements it.
type Reviewer interface {
	ReviewGitHub(ctx context.Context, req *review.GitHubRequest) (*review.Session, error)
	ReviewGitLab(ctx context.Context, req *review.GitLabRequest) (*review.Session, error)
}

// PullRequestGetter fetches a pull request. *github.Client implements it.
type PullRequestGetter interface {
	GetPullRequest(ctx context.Context, installationID int64, owner, repo string, prNumber int) (*github.PullRequest, error)
}

// Request is one inbound webhook delivery.
type Request struct {
	Payload []byte
	// GitLabToken is the access token GitLab sends with the hook.
	GitLabToken string
}

// Decision is the outcome of routing a webhook. Exactly one of GitHub and
// GitLab is set unless the event was skipped.
type Decision struct {
	Event  Event
	Skip   string
	GitHub *review.GitHubRequest
	GitLab *review.GitLabRequest
}

// Skipped reports whether the event does not start a review.
func (d *Decision) Skipped() bool {
	return d.Skip != ""
}

func skip(ev Event, format string, args ...any) *Decision {
	return &Decision{Event: ev, Skip: fmt.Sprintf(format, args...)}
}

// Router applies the trigger policy to webhooks and starts review sessions.
type Router struct {
	store    storage.Storage
	github   PullRequestGetter
	reviewer Reviewer

	mention       string
	sentinelLabel string
	gitlab        config.GitLabConfig
	defaultAPIKey string

	logger *slog.Logger
}

// New creates a Router from the process configuration.
func New(cfg *config.Config, store storage.Storage, gh PullRequestGetter, reviewer Reviewer, logger *slog.Logger) *Router {
	return &Router{
		store:         store,
		github:        gh,
		reviewer:      reviewer,
		mention:       cfg.Review.Mention,
		sentinelLabel: cfg.Review.SentinelLabel,
		gitlab:        cfg.GitLab,
		defaultAPIKey: cfg.AI.APIKey,
		logger:        logger,
	}
}

// Dispatch routes a webhook and runs the resulting review session. Skips are
// logged and return nil.
func (r *Router) Dispatch(ctx context.Context, req *Request) error {
	d, err := r.Route(ctx, req)
	if err != nil {
		return err
	}
	if d.Skipped() {
		r.logger.Info("skipping event", "kind", d.Event.Kind(), "reason", d.Skip)
		return nil
	}

	switch {
	case d.GitHub != nil:
		_, err = r.reviewer.ReviewGitHub(ctx, d.GitHub)
	case d.GitLab != nil:
		_, err = r.reviewer.ReviewGitLab(ctx, d.GitLab)
	}
	if err != nil {
		return fmt.Errorf("review session failed: %w", err)
	}
	return nil
}

// Route classifies a webhook and decides whether it starts a review.
// Policy skips are returned as a skipped Decision. Settings that make a review
// impossible are returned as errors.
func (r *Router) Route(ctx context.Context, req *Request) (*Decision, error) {
	ev, err := ParseEvent(req.Payload)
	if err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case *GitHubPullRequestEvent:
		return r.routePullRequest(ctx, e)
	case *GitHubCommentEvent:
		return r.routeComment(ctx, e)
	case *GitHubIssueEvent:
		return skip(ev, "issue integration not supported"), nil
	case *GitLabMergeRequestEvent:
		return r.routeMergeRequest(ctx, e, req.GitLabToken)
	default:
		return skip(ev, "unsupported event"), nil
	}
}

func (r *Router) routePullRequest(ctx context.Context, e *GitHubPullRequestEvent) (*Decision, error) {
	if e.PullRequest == nil || e.Repository == nil || e.Installation == nil {
		return skip(e, "incomplete pull request event"), nil
	}
	if !github.ShouldReviewPullRequest(e.Action) {
		return skip(e, "unsupported action %q", e.Action), nil
	}
	return r.githubDecision(ctx, e, e.Repository, e.Installation, e.PullRequest, e.PullRequest.LabelNames(), true)
}

func (r *Router) routeComment(ctx context.Context, e *GitHubCommentEvent) (*Decision, error) {
	if e.Repository == nil || e.Installation == nil {
		return skip(e, "incomplete comment event"), nil
	}
	if e.PullRequest == nil && !e.Issue.IsPullRequest() {
		return skip(e, "issue integration not supported"), nil
	}
	if !github.ShouldReviewComment(e.Action, e.Body, e.Author, r.mention) {
		return skip(e, "comment does not request a review"), nil
	}

	// Comment triggers bypass the label filter.
	d, err := r.githubDecision(ctx, e, e.Repository, e.Installation, e.PullRequest, nil, false)
	if err != nil || d.Skipped() {
		return d, err
	}

	if d.GitHub.PullRequest == nil {
		pr, err := r.github.GetPullRequest(ctx, e.Installation.ID, ownerOf(e.Repository), e.Repository.Name, e.Issue.Number)
		if err != nil {
			return nil, err
		}
		d.GitHub.PullRequest = pr
	}
	return d, nil
}

// githubDecision resolves the integration settings of a GitHub repository.
func (r *Router) githubDecision(ctx context.Context, ev Event, repo *github.Repository, inst *github.Installation, pr *github.PullRequest, labels []string, filterLabels bool) (*Decision, error) {
	repository := strings.ToLower(repo.FullName)
	sourceID := storage.SourceID(string(review.PlatformGitHub), repo.DefaultBranch)

	record, err := r.store.GetRepository(ctx, repository, sourceID)
	if err != nil {
		return nil, err
	}
	integration := record.Integration(storage.IntegrationPRReview)
	if integration == nil {
		return skip(ev, "no %s integration for %s, %s", storage.IntegrationPRReview, repository, repo.DefaultBranch), nil
	}
	if filterLabels && !r.labelsAllowed(integration.Labels, labels) {
		return skip(ev, "no matching labels for %s (labels %v, expected %v)", repository, labels, integration.Labels), nil
	}

	apiKey, err := r.authorize(ctx, repository, sourceID, integration)
	if err != nil {
		return nil, err
	}

	return &Decision{
		Event: ev,
		GitHub: &review.GitHubRequest{
			InstallationID: inst.ID,
			Repository:     repository,
			DefaultBranch:  repo.DefaultBranch,
			PullRequest:    pr,
			Settings:       settingsFrom(integration, apiKey),
		},
	}, nil
}

func (r *Router) routeMergeRequest(ctx context.Context, e *GitLabMergeRequestEvent, token string) (*Decision, error) {
	if e.Project == nil || e.ObjectAttributes == nil {
		return skip(e, "incomplete merge request event"), nil
	}
	if !r.gitlab.TriggersOn(e.ObjectAttributes.Action) {
		return skip(e, "unsupported action %q", e.ObjectAttributes.Action), nil
	}
	if token == "" {
		return nil, ErrNoGitLabToken
	}

	repository := strings.ToLower(e.Project.PathWithNamespace)
	sourceID := storage.SourceID(string(review.PlatformGitLab), e.Project.DefaultBranch)

	record, err := r.store.GetRepository(ctx, repository, sourceID)
	if err != nil {
		return nil, err
	}

	settings := review.Settings{APIKey: r.defaultAPIKey}
	if integration := record.Integration(storage.IntegrationPRReview); integration != nil {
		if !r.labelsAllowed(integration.Labels, e.LabelNames()) {
			return skip(e, "no matching labels for %s", repository), nil
		}
		apiKey := r.defaultAPIKey
		if integration.UserID != "" {
			if apiKey, err = r.authorize(ctx, repository, sourceID, integration); err != nil {
				return nil, err
			}
		}
		settings = settingsFrom(integration, apiKey)
	}

	return &Decision{
		Event: e,
		GitLab: &review.GitLabRequest{
			Token:    token,
			Event:    e.MergeRequestEvent,
			Settings: settings,
		},
	}, nil
}

// authorize loads the integration owner's settings and returns their API key.
// A repository missing from the owner's list loses its integration record.
func (r *Router) authorize(ctx context.Context, repository, sourceID string, integration *storage.Integration) (string, error) {
	if integration.UserID == "" {
		return "", ErrNoUserID
	}

	user, err := r.store.GetUserSettings(ctx, integration.UserID)
	if err != nil {
		return "", err
	}
	if user == nil || user.APIKey == "" {
		return "", fmt.Errorf("%w: user %s", ErrNoAPIKey, integration.UserID)
	}

	if !user.Authorizes(repository) {
		if err := r.store.DeleteIntegration(ctx, repository, sourceID, storage.IntegrationPRReview); err != nil {
			r.logger.Error("failed to delete integration", "repo", repository, "source_id", sourceID, "error", err)
		}
		return "", fmt.Errorf("%w: %s", ErrRepositoryNotAuthorized, repository)
	}
	return user.APIKey, nil
}

// labelsAllowed applies the label allow-list. An empty list allows everything;
// otherwise one of the event labels must be in the list or be the sentinel label.
func (r *Router) labelsAllowed(allowed, labels []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, l := range labels {
		if l == r.sentinelLabel {
			return true
		}
		for _, a := range allowed {
			if l == a {
				return true
			}
		}
	}
	return false
}

func settingsFrom(in *storage.Integration, apiKey string) review.Settings {
	return review.Settings{
		Labels:        in.Labels,
		Instructions:  in.Instructions,
		CustomComment: in.Comment,
		APIKey:        apiKey,
	}
}

func ownerOf(repo *github.Repository) string {
	if repo.Owner != nil && repo.Owner.Login != "" {
		return repo.Owner.Login
	}
	owner, _, _ := strings.Cut(repo.FullName, "/")
	return owner
}
