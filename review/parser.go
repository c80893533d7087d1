package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformedResponse indicates the review service returned a message that is
// not a review document.
var ErrMalformedResponse = errors.New("malformed review response")

// DecodeReviewResult decodes the JSON document carried in a JSON-mode message.
// Code fences are stripped first; if the text still does not parse it is passed
// through a JSON repair step once before giving up.
func DecodeReviewResult(message string) (*RawReviewResult, error) {
	cleaned := cleanResponse(message)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedResponse)
	}

	var result RawReviewResult
	err := json.Unmarshal([]byte(cleaned), &result)
	if err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(cleaned)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		cleaned = strings.TrimSpace(repaired)
		result = RawReviewResult{}
		if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("%w: message is not a JSON object", ErrMalformedResponse)
	}

	return &result, nil
}

// cleanResponse removes markdown code fences around a JSON document.
func cleanResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(response, "```")

	return strings.TrimSpace(response)
}

// hunkHeaderRegex matches unified diff hunk headers like "@@ -10,5 +15,7 @@"
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Hunk is the line range a diff hunk covers in the new version of a file.
type Hunk struct {
	NewStart int
	NewLines int
}

// Contains reports whether a new-file line falls inside the hunk.
func (h Hunk) Contains(line int) bool {
	return line >= h.NewStart && line < h.NewStart+h.NewLines
}

// ParseHunks returns the hunks of a single-file unified diff in order.
func ParseHunks(patch string) []Hunk {
	var hunks []Hunk
	for _, line := range strings.Split(patch, "\n") {
		m := hunkHeaderRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[3])
		count := 1
		if m[4] != "" {
			count, _ = strconv.Atoi(m[4])
		}
		hunks = append(hunks, Hunk{NewStart: start, NewLines: count})
	}
	return hunks
}

// sameHunk reports whether both lines fall in one hunk. With no hunks there is
// nothing to cross, so any pair qualifies.
func sameHunk(hunks []Hunk, a, b int) bool {
	if len(hunks) == 0 {
		return true
	}
	for _, h := range hunks {
		if h.Contains(a) && h.Contains(b) {
			return true
		}
	}
	return false
}
