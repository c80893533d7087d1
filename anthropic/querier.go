package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/reviewbot/reviewbot/reviewapi"
)

const (
	// MaxTokens caps a single review reply.
	MaxTokens = 4096

	jsonInstruction = "Respond with a single JSON object and nothing else. Do not wrap it in a code fence."
)

// Querier answers review queries with the Messages API. It satisfies the same
// contract as the hosted review service so the review pipeline can use either.
//
// Genius queries go to the primary model; follow-up attempts use the fast model.
type Querier struct {
	client    *anthropic.Client
	apiKey    string
	model     string
	fastModel string
}

// NewQuerier creates a Querier. Extra request options are passed to the SDK client.
func NewQuerier(apiKey, model, fastModel string, opts ...option.RequestOption) *Querier {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Querier{
		client:    anthropic.NewClient(opts...),
		apiKey:    apiKey,
		model:     model,
		fastModel: fastModel,
	}
}

// Query sends the conversation to the model. The caller's credentials are not
// forwarded: the repository is not indexed on this backend, so the request's
// repository scope is rendered into the system prompt instead.
func (q *Querier) Query(ctx context.Context, req *reviewapi.QueryRequest, _ reviewapi.Credentials) (*reviewapi.QueryResponse, error) {
	var system []string
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("query has no user message")
	}

	for _, r := range req.Repositories {
		system = append(system, fmt.Sprintf("Repository under review: %s (%s, branch %s).", r.Repository, r.Remote, r.Branch))
	}
	if req.JSONMode {
		system = append(system, jsonInstruction)
	}

	model := q.fastModel
	if req.Genius {
		model = q.model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(model)),
		MaxTokens: anthropic.F(int64(MaxTokens)),
		Messages:  anthropic.F(messages),
	}
	if len(system) > 0 {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(strings.Join(system, "\n\n")),
		})
	}

	message, err := q.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			return &reviewapi.QueryResponse{Message: block.Text}, nil
		}
	}
	return nil, fmt.Errorf("no text content in Claude response")
}
