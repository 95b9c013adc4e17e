package aisvc

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/admitdesk/admitdesk/core/essay"
)

var _ essay.Scorer = (*Client)(nil) // interface compliance check

const scoreInstructions = `You are an experienced college admissions essay reviewer.
Grade the essay against each criterion below with a score from 0 to 100, then list the
concrete problems you find. Every problem points at a passage of the essay with
startIndex and endIndex, character offsets into the essay text (end exclusive), and
quotes that passage in highlightedText.

Criteria:
%s
Problem types: %s
Severities: %s

Reply with a single JSON object and nothing else:
{"overallScore": number, "criteria": [{"id": string, "name": string, "score": number}],
 "issues": [{"id": string, "criterionId": string, "startIndex": number, "endIndex": number,
 "highlightedText": string, "problemType": string, "problemDescription": string,
 "recommendation": string, "severity": string}]}`

// Score grades req against the rubric.
func (c *Client) Score(ctx context.Context, req essay.ScoreRequest) (essay.AnalysisResult, error) {
	var res essay.AnalysisResult
	if err := c.completeJSON(ctx, "score", c.scoreSystemPrompt(), scoreUserPrompt(req), &res); err != nil {
		return essay.AnalysisResult{}, err
	}
	return c.normalize(res), nil
}

func (c *Client) scoreSystemPrompt() string {
	var crit strings.Builder
	for _, cr := range c.rubric.Criteria {
		fmt.Fprintf(&crit, "- %s (%s): %s\n", cr.ID, cr.Name, cr.Description)
	}
	return fmt.Sprintf(scoreInstructions, crit.String(),
		strings.Join(c.rubric.ProblemTypes, ", "), strings.Join(c.rubric.Severities, ", "))
}

func scoreUserPrompt(req essay.ScoreRequest) string {
	var b strings.Builder
	if req.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.Title)
	}
	if req.Prompt != "" {
		fmt.Fprintf(&b, "Essay prompt: %s\n", req.Prompt)
	}
	b.WriteString("Essay:\n")
	b.WriteString(req.Content)
	return b.String()
}

// normalize fills what the model leaves out from the rubric: criterion names and colors,
// issue ids. Scores are clamped to 0..100. Offsets are kept as given.
func (c *Client) normalize(res essay.AnalysisResult) essay.AnalysisResult {
	res.OverallScore = clampScore(res.OverallScore)
	if res.Criteria == nil {
		res.Criteria = []essay.Criterion{}
	}
	if res.Issues == nil {
		res.Issues = []essay.Issue{}
	}
	for i, cr := range res.Criteria {
		cr.Score = clampScore(cr.Score)
		if rc, ok := c.rubric.criterion(cr.ID); ok {
			if cr.Name == "" {
				cr.Name = rc.Name
			}
			if cr.Color == "" {
				cr.Color = rc.Color
			}
		}
		res.Criteria[i] = cr
	}
	for i, iss := range res.Issues {
		if iss.ID == "" {
			iss.ID = fmt.Sprintf("issue-%d", i+1)
		}
		if rc, ok := c.rubric.criterion(iss.CriterionID); ok {
			if iss.CriterionName == "" {
				iss.CriterionName = rc.Name
			}
			if iss.Color == "" {
				iss.Color = rc.Color
			}
		}
		res.Issues[i] = iss
	}
	return res
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}
