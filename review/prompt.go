// Package review turns a pull request or merge request into posted review comments.
package review

import (
	"fmt"
	"strings"
)

const fileSystemPrompt = `Generate a review of the changes made in the following file, which is part of a %[1]s. Consider how the file is used in the rest of the codebase and whether files that depend on it are affected.

Respond with a JSON object with this schema:
%[2]s

The "summary" field summarizes the important changes in this file, potential pitfalls and unforeseen consequences in the context of the rest of the codebase.
The "comments" field lists specific, actionable review comments: bugs, incorrect logic, typos. Most files need no comments at all.%[3]s

Rules for comments:
- Only comment on the most pressing issues, in a professional and friendly tone.
- Do not ask the author to check, verify, consider or ensure anything. Such comments are vague and will be discarded.
- Do not make subjective suggestions, comment on docstrings or logging, or describe what the change does.
- Assume design decisions, additions and deletions are deliberate, and that code in other modules is correct.
- "start" and "end" are lines in the new file (unless the file was deleted). They must be in the same change hunk and cover at most 20 lines.
- If the whole file was deleted, make at most one comment for the whole file.
- If you cannot see the file contents or cannot write a meaningful review, say so in the summary and write no comments.
- Keep every comment extremely short and direct.
- Only comment on %[4]s. The other files in the %[5]s are reviewed separately.`

const githubSchema = `{ "summary": string, "comments": [{ "start": number, "end": number, "comment": string }] }`

const gitlabSchema = `{ "summary": string, "comments": [{ "start": number, "end": number, "comment": string, "modify_type": "add" | "delete" }] }`

const modifyTypeInstructions = `
The "modify_type" field says whether the commented line was added ("add") or deleted ("delete").`

const overallPromptTemplate = `Write a very short overall comment for this %s, based on the file change summaries below.
Summarize the changes in order of importance in no more than 4 short bullet points, to guide a reviewer through what changed. Optionally add up to 2 bullet points on pitfalls or unforeseen consequences.
Do not include anything generic or vague, and do not ask the author to check, verify, consider or ensure anything. Most summaries are 1 to 2 bullet points. Stay under 100 words.

%s

%s`

// FileContext is everything the per-file review prompt needs.
type FileContext struct {
	Platform     Platform
	Repository   string
	SourceBranch string
	TargetBranch string
	Title        string
	Body         string
	File         ChangedFile
	// OtherFiles lists every path in the change request, for orientation only.
	OtherFiles   []string
	Instructions string
}

func changeRequestNoun(p Platform) string {
	if p == PlatformGitLab {
		return "GitLab merge request"
	}
	return "GitHub pull request"
}

func shortNoun(p Platform) string {
	if p == PlatformGitLab {
		return "merge request"
	}
	return "pull request"
}

// FileSystemPrompt returns the system prompt for one file review.
func FileSystemPrompt(platform Platform, path, instructions string) string {
	schema, extra := githubSchema, ""
	if platform == PlatformGitLab {
		schema, extra = gitlabSchema, modifyTypeInstructions
	}

	result := fmt.Sprintf(fileSystemPrompt, changeRequestNoun(platform), schema, extra, path, shortNoun(platform))
	if instructions != "" {
		result += "\n\n## Repository-Specific Instructions\n\n" + instructions
	}
	return result
}

// header renders the change request description shared by both prompts.
func header(platform Platform, repository, source, target, title, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repository)
	noun := "Pull request"
	if platform == PlatformGitLab {
		noun = "Merge request"
	}
	fmt.Fprintf(&b, "%s to merge branch `%s` into branch `%s`\n", noun, source, target)
	fmt.Fprintf(&b, "Title: %s", title)
	if body != "" {
		fmt.Fprintf(&b, "\nDescription: %s", body)
	}
	return b.String()
}

// BuildFilePrompt renders the user message for one file review. The file
// content is numbered from 1 so the reply can reference lines directly.
func BuildFilePrompt(fc *FileContext) string {
	var b strings.Builder
	b.WriteString(header(fc.Platform, fc.Repository, fc.SourceBranch, fc.TargetBranch, fc.Title, fc.Body))

	fmt.Fprintf(&b, "\nFile name: %s", fc.File.Path)
	if fc.File.PreviousPath != "" && fc.File.PreviousPath != fc.File.Path {
		fmt.Fprintf(&b, "\nPrevious file name: %s", fc.File.PreviousPath)
	}
	if fc.File.Status != "" {
		fmt.Fprintf(&b, "\nStatus: %s", fc.File.Status)
	}
	if len(fc.OtherFiles) > 0 {
		fmt.Fprintf(&b, "\nOther files changed in this %s (updates not included below): %s",
			shortNoun(fc.Platform), strings.Join(fc.OtherFiles, ", "))
	}

	patch := fc.File.Patch
	if patch == "" {
		patch = "(No diff available)"
	}
	fmt.Fprintf(&b, "\n\nChanges:\n%s\n\nFile with line numbers:\n\n```\n", patch)
	for i, line := range fc.File.Lines() {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	b.WriteString("```\n")
	return b.String()
}

// OverallContext is the input to the overall summary.
type OverallContext struct {
	Platform     Platform
	Repository   string
	SourceBranch string
	TargetBranch string
	Title        string
	Body         string
	Summaries    []FileSummary
}

// BuildOverallPrompt renders the single user message for the overall summary.
func BuildOverallPrompt(oc *OverallContext) string {
	parts := make([]string, 0, len(oc.Summaries))
	for _, s := range oc.Summaries {
		status := s.Status
		if status == "" {
			status = StatusModified
		}
		parts = append(parts, fmt.Sprintf("File: %s (%s)\nSummary of changes: %s", s.Path, status, s.Summary))
	}
	if len(parts) == 0 {
		parts = append(parts, "(No file summaries available)")
	}

	return fmt.Sprintf(overallPromptTemplate,
		shortNoun(oc.Platform),
		header(oc.Platform, oc.Repository, oc.SourceBranch, oc.TargetBranch, oc.Title, oc.Body),
		strings.Join(parts, "\n\n"))
}
