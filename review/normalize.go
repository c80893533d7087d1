package review

import "strings"

// MaxSpanLines is the widest range kept as a multi-line comment. Wider ranges
// collapse to their first line.
const MaxSpanLines = 15

// boilerplatePrefixes open comments that ask the author to double-check
// something instead of pointing at a concrete problem.
var boilerplatePrefixes = []string{
	"Ensure",
	"Verify",
	"Validate",
	"Consider",
	"Review",
	"Confirm",
}

// IsBoilerplate reports whether a comment body opens with a boilerplate verb.
func IsBoilerplate(body string) bool {
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(body, prefix) {
			return true
		}
	}
	return false
}

// Normalize filters a file's raw comments and resolves each survivor to a line
// span. On GitLab the comment's explicit modify_type picks the side; on GitHub
// the side follows the file status. Comments that cannot be placed on any line
// are dropped. Normalize is pure: the same input always yields the same output.
func Normalize(file ChangedFile, raw *RawReviewResult, platform Platform) []NormalizedComment {
	if raw == nil {
		return nil
	}

	hunks := ParseHunks(file.Patch)
	var out []NormalizedComment
	for _, rc := range raw.Comments {
		body := strings.TrimSpace(rc.Comment)
		if body == "" || IsBoilerplate(body) {
			continue
		}

		var c NormalizedComment
		var ok bool
		if platform == PlatformGitLab {
			c, ok = placeExplicit(file, rc)
		} else {
			c, ok = placeByStatus(file, rc, hunks)
		}
		if !ok {
			continue
		}

		c.FilePath = file.Path
		c.OldPath = file.PreviousPath
		c.Body = body
		out = append(out, c)
	}
	return out
}

// placeByStatus derives the span for hosts that infer the side from file status.
func placeByStatus(file ChangedFile, rc RawComment, hunks []Hunk) (NormalizedComment, bool) {
	if file.Status == StatusRemoved {
		return NormalizedComment{Kind: ChangeDelete, LineStart: 1}, true
	}

	kind := ChangeModify
	if file.Status == StatusAdded {
		kind = ChangeAdd
	}

	var start, end int
	switch {
	case rc.End == nil && rc.Start == nil:
		return NormalizedComment{}, false
	case rc.End == nil:
		start, end = *rc.Start, *rc.Start
	case rc.Start == nil:
		start, end = *rc.End, *rc.End
	default:
		start, end = *rc.Start, *rc.End
	}
	if end < start {
		start, end = end, start
	}
	if start < 1 {
		return NormalizedComment{}, false
	}

	c := NormalizedComment{Kind: kind}
	switch {
	case start == end:
		c.LineStart = end
	case end-start <= MaxSpanLines && sameHunk(hunks, start, end):
		c.LineStart, c.LineEnd = start, end
	default:
		c.LineStart = start
	}
	return c, true
}

// placeExplicit anchors a comment on a single line using the comment's own
// add/delete tag, falling back to file status when the tag is missing.
func placeExplicit(file ChangedFile, rc RawComment) (NormalizedComment, bool) {
	var kind ChangeKind
	switch ChangeKind(strings.ToLower(strings.TrimSpace(rc.ModifyType))) {
	case ChangeAdd:
		kind = ChangeAdd
	case ChangeDelete:
		kind = ChangeDelete
	default:
		kind = ChangeAdd
		if file.Status == StatusRemoved {
			kind = ChangeDelete
		}
	}

	line := 0
	switch {
	case rc.Start != nil:
		line = *rc.Start
	case rc.End != nil:
		line = *rc.End
	}
	if line < 1 {
		return NormalizedComment{}, false
	}
	return NormalizedComment{Kind: kind, LineStart: line}, true
}
