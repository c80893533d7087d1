package review

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewbot/reviewbot/github"
	"github.com/reviewbot/reviewbot/gitlab"
	"github.com/reviewbot/reviewbot/reviewapi"
)

// scriptedQuerier answers by the file named in the system prompt, so replies
// do not depend on the order concurrent workers run in.
type scriptedQuerier struct {
	mu       sync.Mutex
	files    map[string]string
	overall  string
	failAll  bool
	overalls int
}

func (q *scriptedQuerier) Query(ctx context.Context, req *reviewapi.QueryRequest, creds reviewapi.Credentials) (*reviewapi.QueryResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !req.JSONMode {
		q.overalls++
		if q.overall == "" {
			return nil, errors.New("summary backend down")
		}
		return &reviewapi.QueryResponse{Message: q.overall}, nil
	}
	if q.failAll {
		return nil, errors.New("backend down")
	}
	system := req.Messages[0].Content
	for path, reply := range q.files {
		if strings.Contains(system, "Only comment on "+path+".") {
			if reply == "" {
				return nil, errors.New("file failed")
			}
			return &reviewapi.QueryResponse{Message: reply}, nil
		}
	}
	return &reviewapi.QueryResponse{Message: `{"summary":"nothing","comments":[]}`}, nil
}

type fakeGitHub struct {
	fakeGitHubPoster
	files    []github.PullRequestFile
	contents map[string]string
	fetched  []string
	mu       sync.Mutex
}

func (f *fakeGitHub) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	return "ghs_token", nil
}

func (f *fakeGitHub) FetchPullRequestFiles(ctx context.Context, installationID int64, owner, repo string, prNumber int) ([]github.PullRequestFile, error) {
	return f.files, nil
}

func (f *fakeGitHub) FetchFileContent(ctx context.Context, installationID int64, owner, repo, path, ref string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, path+"@"+ref)
	f.mu.Unlock()
	return f.contents[path], nil
}

func testPullRequest() *github.PullRequest {
	return &github.PullRequest{
		Number: 7,
		Title:  "Add cache",
		Head:   &github.Ref{Ref: "feature", SHA: "head-sha"},
		Base:   &github.Ref{Ref: "main", SHA: "base-sha"},
	}
}

func TestReviewGitHub(t *testing.T) {
	gh := &fakeGitHub{
		files: []github.PullRequestFile{
			{Filename: "a.go", Status: "modified", Patch: "@@ -1,3 +1,5 @@"},
			{Filename: "vendor/x.go", Status: "modified"},
			{Filename: "b.go", Status: "added"},
			{Filename: "c.go", Status: "modified"},
			{Filename: "gone.go", Status: "removed"},
		},
		contents: map[string]string{"a.go": "package a", "b.go": "package b"},
	}
	q := &scriptedQuerier{
		files: map[string]string{
			"a.go":    `{"summary":"a changes","comments":[{"start":2,"end":4,"comment":"race on map"},{"start":1,"comment":"Ensure it works"}]}`,
			"b.go":    `{"summary":"b added","comments":[{"start":1,"comment":"wrong package"}]}`,
			"c.go":    "",
			"gone.go": `{"summary":"deleted","comments":[{"start":30,"comment":"still imported"}]}`,
		},
		overall: "- Adds a cache",
	}

	r := NewReviewer(NewClient(q, fastPolicy(), testLogger()), gh, nil, Options{
		Concurrency: 3,
		Exclude:     func(p string) bool { return strings.HasPrefix(p, "vendor/") },
	}, testLogger())

	s, err := r.ReviewGitHub(context.Background(), &GitHubRequest{
		InstallationID: 1,
		Repository:     "acme/api",
		DefaultBranch:  "main",
		PullRequest:    testPullRequest(),
		Settings:       Settings{APIKey: "key", CustomComment: "Bot review"},
	})
	require.NoError(t, err)

	require.Len(t, s.Files, 4)
	assert.Equal(t, "a.go", s.Files[0].Path)
	assert.Equal(t, StatusRemoved, s.Files[3].Status)
	assert.NotContains(t, gh.fetched, "gone.go@head-sha")
	assert.Contains(t, gh.fetched, "a.go@head-sha")

	// File order is preserved and the failed file contributes nothing.
	require.Len(t, s.Comments, 3)
	assert.Equal(t, NormalizedComment{FilePath: "a.go", Kind: ChangeModify, LineStart: 2, LineEnd: 4, Body: "race on map"}, s.Comments[0])
	assert.Equal(t, "b.go", s.Comments[1].FilePath)
	assert.Equal(t, ChangeAdd, s.Comments[1].Kind)
	assert.Equal(t, NormalizedComment{FilePath: "gone.go", Kind: ChangeDelete, LineStart: 1, Body: "still imported"}, s.Comments[2])

	require.Len(t, s.Summaries, 3)
	assert.Equal(t, []string{"a.go", "b.go", "gone.go"}, []string{s.Summaries[0].Path, s.Summaries[1].Path, s.Summaries[2].Path})
	assert.Equal(t, "- Adds a cache", s.OverallComment)

	require.Len(t, gh.reviews, 1)
	assert.Equal(t, "Bot review\n- Adds a cache", gh.reviews[0].Body)
	assert.Equal(t, "head-sha", gh.reviews[0].CommitID)
	assert.Len(t, gh.reviews[0].Comments, 3)
}

func TestReviewGitHubSummaryFailureStillPosts(t *testing.T) {
	gh := &fakeGitHub{files: []github.PullRequestFile{{Filename: "a.go", Status: "modified"}}}
	q := &scriptedQuerier{files: map[string]string{
		"a.go": `{"summary":"x","comments":[{"start":3,"comment":"off by one"}]}`,
	}}

	r := NewReviewer(NewClient(q, fastPolicy(), testLogger()), gh, nil, Options{}, testLogger())
	s, err := r.ReviewGitHub(context.Background(), &GitHubRequest{
		InstallationID: 1,
		Repository:     "acme/api",
		PullRequest:    testPullRequest(),
	})
	require.NoError(t, err)

	assert.Equal(t, SummaryErrorText, s.OverallComment)
	assert.Equal(t, 3, q.overalls)
	require.Len(t, gh.reviews, 1)
	assert.Len(t, gh.reviews[0].Comments, 1)
}

func TestReviewGitHubAllFilesFail(t *testing.T) {
	gh := &fakeGitHub{files: []github.PullRequestFile{{Filename: "a.go"}, {Filename: "b.go"}}}
	q := &scriptedQuerier{failAll: true, overall: "- Nothing to report"}

	r := NewReviewer(NewClient(q, fastPolicy(), testLogger()), gh, nil, Options{Concurrency: 2}, testLogger())
	s, err := r.ReviewGitHub(context.Background(), &GitHubRequest{Repository: "acme/api", PullRequest: testPullRequest()})
	require.NoError(t, err)

	assert.Empty(t, s.Comments)
	require.Len(t, gh.reviews, 1)
	assert.Empty(t, gh.reviews[0].Comments)
}

func TestReviewGitHubRejectsIncompletePullRequest(t *testing.T) {
	r := NewReviewer(NewClient(&scriptedQuerier{}, fastPolicy(), testLogger()), &fakeGitHub{}, nil, Options{}, testLogger())
	_, err := r.ReviewGitHub(context.Background(), &GitHubRequest{PullRequest: &github.PullRequest{Number: 1}})
	assert.Error(t, err)
}

type fakeGitLab struct {
	fakeGitLabPoster
	diffs    []gitlab.FileDiff
	branches map[string]string
	contents map[string]string
	refs     []string
}

func (f *fakeGitLab) ListMergeRequestDiffs(ctx context.Context, project string, mr int) ([]gitlab.FileDiff, error) {
	return f.diffs, nil
}

func (f *fakeGitLab) FetchFileContent(ctx context.Context, project, path, ref string) (string, error) {
	return f.contents[path], nil
}

func (f *fakeGitLab) BranchHead(ctx context.Context, project, branch string) (string, error) {
	f.refs = append(f.refs, branch)
	sha, ok := f.branches[branch]
	if !ok {
		return "", errors.New("branch not found")
	}
	return sha, nil
}

func testMergeRequestEvent() *gitlab.MergeRequestEvent {
	return &gitlab.MergeRequestEvent{
		ObjectKind: "merge_request",
		Project:    &gitlab.Project{PathWithNamespace: "group/project", DefaultBranch: "main"},
		ObjectAttributes: &gitlab.MergeRequestAttributes{
			IID:          3,
			Title:        "Refactor auth",
			SourceBranch: "feature",
			TargetBranch: "main",
			Action:       "open",
			LastCommit:   &gitlab.Commit{ID: "head-sha"},
		},
	}
}

func TestReviewGitLab(t *testing.T) {
	gl := &fakeGitLab{
		diffs: []gitlab.FileDiff{
			{OldPath: "lib/auth.rb", NewPath: "app/auth.rb", RenamedFile: true, Diff: "@@ -1,2 +1,3 @@"},
			{OldPath: "old.rb", NewPath: "old.rb", DeletedFile: true},
		},
		branches: map[string]string{"develop": "develop-sha", "main": "main-sha"},
	}
	q := &scriptedQuerier{
		files: map[string]string{
			"app/auth.rb": `{"summary":"moved","comments":[{"start":2,"comment":"nil token","modify_type":"add"}]}`,
			"old.rb":      `{"summary":"gone","comments":[{"start":5,"comment":"still required","modify_type":"delete"}]}`,
		},
		overall: "- Moves auth",
	}

	var gotToken string
	connect := func(token string) (GitLabAPI, error) {
		gotToken = token
		return gl, nil
	}
	r := NewReviewer(NewClient(q, fastPolicy(), testLogger()), nil, connect, Options{GitLabBaseBranch: "develop"}, testLogger())

	s, err := r.ReviewGitLab(context.Background(), &GitLabRequest{
		Token:    "glpat-1",
		Event:    testMergeRequestEvent(),
		Settings: Settings{APIKey: "key"},
	})
	require.NoError(t, err)

	assert.Equal(t, "glpat-1", gotToken)
	assert.Equal(t, []string{"develop"}, gl.refs)
	assert.Equal(t, "develop-sha", s.BaseSHA)
	assert.Equal(t, "develop-sha", s.StartSHA)
	assert.Equal(t, "head-sha", s.HeadSHA)

	assert.Equal(t, []string{"- Moves auth"}, gl.notes)
	require.Len(t, gl.discussions, 2)
	assert.Equal(t, gitlab.Position{
		BaseSHA: "develop-sha", HeadSHA: "head-sha", StartSHA: "develop-sha",
		OldPath: "lib/auth.rb", NewPath: "app/auth.rb", NewLine: 2,
	}, gl.discussions[0].pos)
	assert.Equal(t, 5, gl.discussions[1].pos.OldLine)
	assert.Zero(t, gl.discussions[1].pos.NewLine)
}

func TestReviewGitLabDefaultsToTargetBranch(t *testing.T) {
	gl := &fakeGitLab{branches: map[string]string{"main": "main-sha", "feature": "feature-sha"}}
	ev := testMergeRequestEvent()
	ev.ObjectAttributes.LastCommit = nil

	r := NewReviewer(NewClient(&scriptedQuerier{overall: "ok"}, fastPolicy(), testLogger()), nil,
		func(string) (GitLabAPI, error) { return gl, nil }, Options{}, testLogger())

	s, err := r.ReviewGitLab(context.Background(), &GitLabRequest{Token: "t", Event: ev})
	require.NoError(t, err)
	assert.Equal(t, "main-sha", s.BaseSHA)
	assert.Equal(t, "feature-sha", s.HeadSHA)
}

func TestReviewFilesLogsFilesSkippedOnCancel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &scriptedQuerier{}
	r := NewReviewer(NewClient(q, fastPolicy(), logger), nil, nil, Options{Concurrency: 1}, logger)
	s := &Session{
		Platform: PlatformGitHub,
		Files:    []ChangedFile{{Path: "a.go", Status: StatusModified}, {Path: "b.go", Status: StatusModified}},
	}

	// Whichever file holds the only slot cancels the session; the other
	// never gets one.
	fetch := func(context.Context, ChangedFile) (string, error) {
		cancel()
		return "package x", nil
	}
	r.reviewFiles(ctx, s, testScope(), fetch, logger)

	assert.Equal(t, 1, strings.Count(buf.String(), "skipped file review"))
	assert.LessOrEqual(t, len(s.Summaries), 1)
}
