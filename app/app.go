// Package app wires the configured components into a running bot.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/reviewbot/reviewbot/anthropic"
	"github.com/reviewbot/reviewbot/config"
	"github.com/reviewbot/reviewbot/github"
	"github.com/reviewbot/reviewbot/gitlab"
	"github.com/reviewbot/reviewbot/review"
	"github.com/reviewbot/reviewbot/reviewapi"
	"github.com/reviewbot/reviewbot/router"
	"github.com/reviewbot/reviewbot/storage"
	"github.com/reviewbot/reviewbot/storage/dynamodb"
	"github.com/reviewbot/reviewbot/storage/local"
	"github.com/reviewbot/reviewbot/storage/postgres"
)

// App holds the long-lived components built from the configuration.
type App struct {
	Router   *router.Router
	Reviewer *review.Reviewer
	Store    storage.Storage

	closers []func() error
}

// New builds every component. The review backend key is checked when the
// backend supports it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	store, closeStore, err := NewStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	querier, err := NewQuerier(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	githubClient := github.NewClient(cfg.GitHub.AppID, []byte(cfg.GitHub.PrivateKey), github.WithBaseURL(cfg.GitHub.APIURL))
	connect := func(token string) (review.GitLabAPI, error) {
		c, err := gitlab.NewClient(cfg.GitLab.APIURL, token)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	var limiter *rate.Limiter
	if cfg.GitLab.PostRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GitLab.PostRate), 1)
	}

	client := review.NewClient(querier, review.Policy{
		MaxAttempts: cfg.Review.MaxAttempts,
		BaseDelay:   cfg.Review.RetryDelay,
		Effort:      review.EffortFirstAttempt,
	}, logger)

	a.Reviewer = review.NewReviewer(client, githubClient, connect, review.Options{
		Concurrency:      cfg.Review.Concurrency,
		Exclude:          cfg.Review.Excluded,
		GitLabBaseBranch: cfg.GitLab.BaseBranch,
		GitLabLimiter:    limiter,
	}, logger)

	a.Router = router.New(cfg, store, githubClient, a.Reviewer, logger)

	logger.Info("initialized",
		"app_id", cfg.GitHub.AppID,
		"backend", cfg.AI.Backend,
		"store", cfg.Store.Provider,
		"concurrency", cfg.Review.Concurrency,
	)
	return a, nil
}

// Close releases the store connection.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewStore opens the configured settings store. The returned close function may be nil.
func NewStore(ctx context.Context, cfg config.StoreConfig) (storage.Storage, func() error, error) {
	switch cfg.Provider {
	case config.ProviderDynamoDB:
		store, err := dynamodb.NewFromRegion(ctx, cfg.AWSRegion, cfg.DynamoDBTable, cfg.RepositoriesTable)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.ProviderPostgres:
		store, err := postgres.NewFromDSN(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.ProviderLocal:
		store, err := local.Open(cfg.SettingsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
}

// NewQuerier creates the configured review backend.
func NewQuerier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (review.Querier, error) {
	switch cfg.AI.Backend {
	case config.BackendQuery:
		return reviewapi.NewClient(cfg.AI.URL), nil
	case config.BackendAnthropic:
		q := anthropic.NewQuerier(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.FastModel)
		if err := q.Validate(ctx); err != nil {
			return nil, fmt.Errorf("invalid Anthropic API key: %w", err)
		}
		logger.Info("using anthropic backend",
			"model", cfg.Anthropic.Model,
			"fast_model", cfg.Anthropic.FastModel,
			"key_hint", anthropic.KeyHint(cfg.Anthropic.APIKey),
		)
		return q, nil
	default:
		return nil, fmt.Errorf("unknown AI backend %q", cfg.AI.Backend)
	}
}
