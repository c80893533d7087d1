package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reviewbot/reviewbot/reviewapi"
)

// SummaryErrorText replaces the overall summary when it could not be generated.
const SummaryErrorText = "An error occurred while generating the summary for this change."

// Querier sends one query to a review backend. *reviewapi.Client and
// *anthropic.Querier implement it.
type Querier interface {
	Query(ctx context.Context, req *reviewapi.QueryRequest, creds reviewapi.Credentials) (*reviewapi.QueryResponse, error)
}

// Scope identifies the indexed repository a query runs against and the
// credentials to send with it.
type Scope struct {
	Remote      string
	Repository  string
	Branch      string
	Credentials reviewapi.Credentials
}

func (s Scope) repositories() []reviewapi.RepositoryRef {
	return []reviewapi.RepositoryRef{{
		Remote:     s.Remote,
		Repository: s.Repository,
		Branch:     s.Branch,
	}}
}

// Client asks the review service for per-file reviews and the overall summary.
type Client struct {
	querier Querier
	policy  Policy
	logger  *slog.Logger
}

// NewClient creates a review client.
func NewClient(querier Querier, policy Policy, logger *slog.Logger) *Client {
	return &Client{querier: querier, policy: policy, logger: logger}
}

// ReviewFile reviews one file. Only the first attempt runs in genius mode.
// Transport failures, error statuses and undecodable messages are all retried.
func (c *Client) ReviewFile(ctx context.Context, scope Scope, fc *FileContext) (*RawReviewResult, error) {
	policy := c.policy
	policy.Effort = EffortFirstAttempt

	messages := []reviewapi.Message{
		{Role: "system", Content: FileSystemPrompt(fc.Platform, fc.File.Path, fc.Instructions)},
		{Role: "user", Content: BuildFilePrompt(fc)},
	}

	return Retry(ctx, c.logger, policy, "review file "+fc.File.Path, func(ctx context.Context, attempt Attempt) (*RawReviewResult, error) {
		resp, err := c.querier.Query(ctx, &reviewapi.QueryRequest{
			Messages:     messages,
			Repositories: scope.repositories(),
			Genius:       attempt.Genius,
			JSONMode:     true,
		}, scope.Credentials)
		if err != nil {
			return nil, err
		}
		return DecodeReviewResult(resp.Message)
	})
}

// ReviewOverall writes the overall summary from the per-file summaries.
// The summary is free text, so every attempt runs in genius mode without JSON mode.
func (c *Client) ReviewOverall(ctx context.Context, scope Scope, oc *OverallContext) (string, error) {
	policy := c.policy
	policy.Effort = EffortAlways

	messages := []reviewapi.Message{
		{Role: "user", Content: BuildOverallPrompt(oc)},
	}

	return Retry(ctx, c.logger, policy, "review overall", func(ctx context.Context, attempt Attempt) (string, error) {
		resp, err := c.querier.Query(ctx, &reviewapi.QueryRequest{
			Messages:     messages,
			Repositories: scope.repositories(),
			Genius:       attempt.Genius,
		}, scope.Credentials)
		if err != nil {
			return "", err
		}
		summary := strings.TrimSpace(resp.Message)
		if summary == "" {
			return "", fmt.Errorf("%w: empty summary", ErrMalformedResponse)
		}
		return summary, nil
	})
}
