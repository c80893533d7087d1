// Package gitlab wraps the GitLab REST API and defines merge request webhook payloads.
package gitlab

// MergeRequestEvent is the payload of a GitLab merge request hook.
type MergeRequestEvent struct {
	ObjectKind       string                  `json:"object_kind"`
	EventType        string                  `json:"event_type"`
	User             *User                   `json:"user"`
	Project          *Project                `json:"project"`
	ObjectAttributes *MergeRequestAttributes `json:"object_attributes"`
	Labels           []Label                 `json:"labels"`
}

// LabelNames returns the titles of the labels on the merge request.
func (e *MergeRequestEvent) LabelNames() []string {
	names := make([]string, 0, len(e.Labels))
	for _, l := range e.Labels {
		names = append(names, l.Title)
	}
	return names
}

// User is the account that triggered the hook.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Project identifies the target project of the merge request.
type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	WebURL            string `json:"web_url"`
}

// MergeRequestAttributes are the merge request fields of the hook payload.
type MergeRequestAttributes struct {
	ID           int64   `json:"id"`
	IID          int     `json:"iid"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	State        string  `json:"state"`
	Action       string  `json:"action"`
	SourceBranch string  `json:"source_branch"`
	TargetBranch string  `json:"target_branch"`
	LastCommit   *Commit `json:"last_commit"`
	URL          string  `json:"url"`
}

// Commit is a commit reference in a hook payload.
type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Label is a merge request label in a hook payload.
type Label struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// FileDiff is one changed file of a merge request.
type FileDiff struct {
	OldPath     string
	NewPath     string
	Diff        string
	NewFile     bool
	RenamedFile bool
	DeletedFile bool
}

// Position is a text diff position for a merge request discussion.
// A zero OldLine or NewLine is left out of the request.
type Position struct {
	BaseSHA  string
	HeadSHA  string
	StartSHA string
	OldPath  string
	NewPath  string
	OldLine  int
	NewLine  int
}
