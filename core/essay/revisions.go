package essay

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Changes is the unified diff between the content the counselor reviewed and the current content.
type Changes struct {
	Reviewed bool   `json:"reviewed"`
	Changed  bool   `json:"changed"`
	Diff     string `json:"diff"`
}

// ChangesSinceReview diffs the draft against the content captured when feedback was sent.
func ChangesSinceReview(d Draft) (Changes, error) {
	if d.ReviewedContent == nil {
		return Changes{}, nil
	}
	if *d.ReviewedContent == d.Content {
		return Changes{Reviewed: true}, nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(*d.ReviewedContent),
		B:        difflib.SplitLines(d.Content),
		FromFile: "reviewed",
		ToFile:   "current",
		Context:  2,
	})
	if err != nil {
		return Changes{}, err
	}
	return Changes{Reviewed: true, Changed: true, Diff: diff}, nil
}
