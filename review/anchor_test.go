package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGitHubAnchor(t *testing.T) {
	tests := []struct {
		name    string
		comment NormalizedComment
		want    GitHubAnchor
	}{
		{
			name:    "single added line",
			comment: NormalizedComment{FilePath: "a.go", Kind: ChangeAdd, LineStart: 4},
			want:    GitHubAnchor{Path: "a.go", Side: SideRight, Line: 4},
		},
		{
			name:    "modified span",
			comment: NormalizedComment{FilePath: "a.go", Kind: ChangeModify, LineStart: 10, LineEnd: 12},
			want:    GitHubAnchor{Path: "a.go", Side: SideRight, Line: 12, StartLine: 10, StartSide: SideRight},
		},
		{
			name:    "deleted file",
			comment: NormalizedComment{FilePath: "a.go", Kind: ChangeDelete, LineStart: 1},
			want:    GitHubAnchor{Path: "a.go", Side: SideLeft, Line: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToGitHubAnchor(tt.comment)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToGitHubAnchorInvalid(t *testing.T) {
	for _, c := range []NormalizedComment{
		{Kind: ChangeAdd, LineStart: 1},
		{FilePath: "a.go", Kind: ChangeAdd},
		{FilePath: "a.go", Kind: ChangeAdd, LineStart: 1, LineEnd: 30},
	} {
		_, err := ToGitHubAnchor(c)
		assert.ErrorIs(t, err, ErrInvalidAnchor)
	}
}

func TestToGitLabAnchor(t *testing.T) {
	refs := DiffRefs{BaseSHA: "base", HeadSHA: "head", StartSHA: "start"}

	added, err := ToGitLabAnchor(NormalizedComment{FilePath: "b.rb", Kind: ChangeAdd, LineStart: 7}, refs)
	require.NoError(t, err)
	assert.Equal(t, GitLabAnchor{
		PositionType: PositionTypeText,
		BaseSHA:      "base",
		HeadSHA:      "head",
		StartSHA:     "start",
		OldPath:      "b.rb",
		NewPath:      "b.rb",
		NewLine:      7,
	}, added)

	deleted, err := ToGitLabAnchor(NormalizedComment{FilePath: "b.rb", OldPath: "a.rb", Kind: ChangeDelete, LineStart: 3}, refs)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted.OldLine)
	assert.Zero(t, deleted.NewLine)
	assert.Equal(t, "a.rb", deleted.OldPath)
	assert.Equal(t, "b.rb", deleted.NewPath)

	modified, err := ToGitLabAnchor(NormalizedComment{FilePath: "b.rb", Kind: ChangeModify, LineStart: 2}, refs)
	require.NoError(t, err)
	assert.Equal(t, 2, modified.NewLine)
	assert.Zero(t, modified.OldLine)
}

func TestToGitLabAnchorInvalid(t *testing.T) {
	refs := DiffRefs{BaseSHA: "base", HeadSHA: "head", StartSHA: "start"}

	_, err := ToGitLabAnchor(NormalizedComment{FilePath: "b.rb", Kind: ChangeAdd}, refs)
	assert.ErrorIs(t, err, ErrInvalidAnchor)

	_, err = ToGitLabAnchor(NormalizedComment{FilePath: "b.rb", Kind: ChangeAdd, LineStart: 1}, DiffRefs{HeadSHA: "head"})
	assert.ErrorIs(t, err, ErrInvalidAnchor)

	_, err = ToGitLabAnchor(NormalizedComment{FilePath: "b.rb", Kind: "rename", LineStart: 1}, refs)
	assert.ErrorIs(t, err, ErrInvalidAnchor)
}

func TestGitLabAnchorValidateBothLines(t *testing.T) {
	a := GitLabAnchor{BaseSHA: "b", HeadSHA: "h", StartSHA: "s", OldPath: "x", NewPath: "x", OldLine: 1, NewLine: 1}
	assert.ErrorIs(t, a.Validate(), ErrInvalidAnchor)
}
