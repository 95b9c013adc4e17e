package essay

import (
	"unicode/utf8"
)

// AnalysisResult is the scorer's output, stored verbatim on the Draft.
type AnalysisResult struct {
	OverallScore float64     `json:"overallScore"`
	Criteria     []Criterion `json:"criteria"`
	Issues       []Issue     `json:"issues"`
}

type Criterion struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Color string  `json:"color"`
}

// Issue is a problem found in a range of the content.
// StartIndex and EndIndex are character offsets and are not trusted.
type Issue struct {
	ID                 string `json:"id"`
	CriterionID        string `json:"criterionId"`
	CriterionName      string `json:"criterionName"`
	Color              string `json:"color"`
	StartIndex         int    `json:"startIndex"`
	EndIndex           int    `json:"endIndex"`
	HighlightedText    string `json:"highlightedText"`
	ProblemType        string `json:"problemType"`
	ProblemDescription string `json:"problemDescription"`
	Recommendation     string `json:"recommendation"`
	Severity           string `json:"severity"`
}

func (r *AnalysisResult) issue(id string) (Issue, bool) {
	if r == nil {
		return Issue{}, false
	}
	for _, iss := range r.Issues {
		if iss.ID == id {
			return iss, true
		}
	}
	return Issue{}, false
}

// Highlight is an Issue resolved against the current content.
// Valid is false when the offsets do not fit the content; Excerpt is then empty.
type Highlight struct {
	Issue   Issue  `json:"issue"`
	Excerpt string `json:"excerpt"`
	Valid   bool   `json:"valid"`
}

// Excerpt returns content[start:end] in characters when 0 <= start <= end <= len(content).
func Excerpt(content string, start, end int) (string, bool) {
	if start < 0 || end < start || end > utf8.RuneCountInString(content) {
		return "", false
	}
	runes := []rune(content)
	return string(runes[start:end]), true
}

// Highlights resolves every issue of the analysis against content.
func Highlights(content string, analysis *AnalysisResult) []Highlight {
	if analysis == nil {
		return []Highlight{}
	}
	hls := make([]Highlight, 0, len(analysis.Issues))
	for _, iss := range analysis.Issues {
		excerpt, ok := Excerpt(content, iss.StartIndex, iss.EndIndex)
		hls = append(hls, Highlight{Issue: iss, Excerpt: excerpt, Valid: ok})
	}
	return hls
}
