// Package router classifies inbound webhooks, applies the trigger policy and
// dispatches review sessions.
package router

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/reviewbot/reviewbot/github"
	"github.com/reviewbot/reviewbot/gitlab"
)

// Event is a classified webhook payload. It is one of *GitHubPullRequestEvent,
// *GitHubCommentEvent, *GitHubIssueEvent, *GitLabMergeRequestEvent or *UnknownEvent.
type Event interface {
	// Kind names the event for logs.
	Kind() string
}

// GitHubPullRequestEvent is a pull_request event.
type GitHubPullRequestEvent struct {
	*github.PullRequestEvent
}

// GitHubCommentEvent is a comment on a pull request, either inline
// (pull_request_review_comment) or on the conversation (issue_comment).
type GitHubCommentEvent struct {
	Action       string
	Body         string
	Author       *github.User
	Repository   *github.Repository
	Installation *github.Installation
	// PullRequest is set for inline comments. Conversation comments carry
	// only the Issue and the pull request must be fetched.
	PullRequest *github.PullRequest
	Issue       *github.Issue
}

// GitHubIssueEvent is an issue event. Issues are not reviewed.
type GitHubIssueEvent struct {
	Action     string
	Repository *github.Repository
}

// GitLabMergeRequestEvent is a merge request hook.
type GitLabMergeRequestEvent struct {
	*gitlab.MergeRequestEvent
}

// UnknownEvent is any other JSON object.
type UnknownEvent struct {
	// Keys are the top-level keys of the payload, sorted.
	Keys []string
}

func (*GitHubPullRequestEvent) Kind() string  { return "github_pull_request" }
func (*GitHubCommentEvent) Kind() string      { return "github_comment" }
func (*GitHubIssueEvent) Kind() string        { return "github_issue" }
func (*GitLabMergeRequestEvent) Kind() string { return "gitlab_merge_request" }
func (*UnknownEvent) Kind() string            { return "unknown" }

type issuePayload struct {
	Action     string             `json:"action"`
	Repository *github.Repository `json:"repository"`
}

// ParseEvent classifies a webhook body by its shape and decodes it into the
// matching event. A payload with a pull_request or issue key is a GitHub event;
// one whose object_kind is "merge_request" is a GitLab event. Only bodies that
// are not JSON objects, or that fail to decode into their variant, are errors.
func ParseEvent(payload []byte) (Event, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(payload, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	_, hasPR := keys["pull_request"]
	_, hasIssue := keys["issue"]
	_, hasComment := keys["comment"]

	switch {
	case hasComment && hasPR:
		var p github.ReviewCommentEvent
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to parse review comment event: %w", err)
		}
		ev := &GitHubCommentEvent{
			Action:       p.Action,
			Author:       p.Sender,
			Repository:   p.Repository,
			Installation: p.Installation,
			PullRequest:  p.PullRequest,
		}
		if p.Comment != nil {
			ev.Body = p.Comment.Body
			if p.Comment.User != nil {
				ev.Author = p.Comment.User
			}
		}
		return ev, nil

	case hasComment && hasIssue:
		var p github.IssueCommentEvent
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to parse issue comment event: %w", err)
		}
		ev := &GitHubCommentEvent{
			Action:       p.Action,
			Author:       p.Sender,
			Repository:   p.Repository,
			Installation: p.Installation,
			Issue:        p.Issue,
		}
		if p.Comment != nil {
			ev.Body = p.Comment.Body
			if p.Comment.User != nil {
				ev.Author = p.Comment.User
			}
		}
		return ev, nil

	case hasPR:
		var ev github.PullRequestEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to parse pull request event: %w", err)
		}
		return &GitHubPullRequestEvent{PullRequestEvent: &ev}, nil

	case hasIssue:
		var p issuePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to parse issue event: %w", err)
		}
		return &GitHubIssueEvent{Action: p.Action, Repository: p.Repository}, nil
	}

	var kind string
	if raw, ok := keys["object_kind"]; ok {
		_ = json.Unmarshal(raw, &kind)
	}
	if kind == "merge_request" {
		var ev gitlab.MergeRequestEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to parse merge request event: %w", err)
		}
		return &GitLabMergeRequestEvent{MergeRequestEvent: &ev}, nil
	}

	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	return &UnknownEvent{Keys: names}, nil
}
