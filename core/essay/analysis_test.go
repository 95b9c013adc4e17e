package essay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		start, end int
		want       string
		wantOk     bool
	}{
		{name: "whole", content: "Hello world", start: 0, end: 11, want: "Hello world", wantOk: true},
		{name: "middle", content: "Hello world", start: 6, end: 11, want: "world", wantOk: true},
		{name: "empty range", content: "Hello", start: 2, end: 2, want: "", wantOk: true},
		{name: "characters not bytes", content: "Élève brillant", start: 0, end: 5, want: "Élève", wantOk: true},
		{name: "end past content", content: "Hello", start: 0, end: 6},
		{name: "negative start", content: "Hello", start: -1, end: 3},
		{name: "inverted", content: "Hello", start: 4, end: 2},
		{name: "empty content", content: "", start: 0, end: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Excerpt(tt.content, tt.start, tt.end)
			if ok != tt.wantOk || got != tt.want {
				t.Errorf("Excerpt() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestHighlights(t *testing.T) {
	assert.Equal(t, []Highlight{}, Highlights("anything", nil))

	analysis := &AnalysisResult{Issues: []Issue{
		{ID: "i1", StartIndex: 0, EndIndex: 5},
		{ID: "i2", StartIndex: 40, EndIndex: 80},
	}}
	hls := Highlights("Hello world", analysis)
	if assert.Len(t, hls, 2) {
		assert.Equal(t, Highlight{Issue: analysis.Issues[0], Excerpt: "Hello", Valid: true}, hls[0])
		assert.False(t, hls[1].Valid)
		assert.Empty(t, hls[1].Excerpt)
	}
}

func TestChangesSinceReview(t *testing.T) {
	reviewed := "line one\nline two\n"

	got, err := ChangesSinceReview(Draft{Content: "anything"})
	assert.NoError(t, err)
	assert.Equal(t, Changes{}, got, "never reviewed")

	got, err = ChangesSinceReview(Draft{Content: reviewed, ReviewedContent: &reviewed})
	assert.NoError(t, err)
	assert.Equal(t, Changes{Reviewed: true}, got)

	got, err = ChangesSinceReview(Draft{Content: "line one\nline 2\n", ReviewedContent: &reviewed})
	assert.NoError(t, err)
	assert.True(t, got.Changed)
	assert.Contains(t, got.Diff, "--- reviewed")
	assert.Contains(t, got.Diff, "-line two")
	assert.Contains(t, got.Diff, "+line 2")
}
