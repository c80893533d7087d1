package github

import "strings"

// ShouldReviewPullRequest reports whether a pull_request action starts a review.
// Only newly opened and reopened pull requests are reviewed automatically.
func ShouldReviewPullRequest(action string) bool {
	switch action {
	case "opened", "reopened":
		return true
	default:
		return false
	}
}

// ShouldReviewComment reports whether a comment asks for a review: it must be
// created or edited, mention the bot and come from a human account.
func ShouldReviewComment(action, body string, author *User, mention string) bool {
	switch action {
	case "created", "edited":
	default:
		return false
	}
	if author.IsBot() {
		return false
	}
	return ContainsMention(body, mention)
}

// ContainsMention checks if text contains an @mention of the given username.
// The leading "@" on username is optional. The mention must not be part of an
// email address or a longer handle.
func ContainsMention(text, username string) bool {
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return false
	}
	lowerText := strings.ToLower(text)
	mention := "@" + strings.ToLower(username)

	idx := 0
	for {
		pos := strings.Index(lowerText[idx:], mention)
		if pos == -1 {
			return false
		}
		pos += idx

		// Character before must be start of string or non-alphanumeric
		if pos > 0 && isAlphanumeric(lowerText[pos-1]) {
			idx = pos + 1
			continue
		}

		// Character after must not continue the handle or start a domain
		afterPos := pos + len(mention)
		if afterPos < len(lowerText) {
			after := lowerText[afterPos]
			if isAlphanumeric(after) || after == '-' {
				idx = pos + 1
				continue
			}
			if after == '.' && afterPos+1 < len(lowerText) && isLetter(lowerText[afterPos+1]) {
				idx = pos + 1
				continue
			}
		}

		return true
	}
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
