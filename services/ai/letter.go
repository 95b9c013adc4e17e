package aisvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/admitdesk/admitdesk/core/recommendation"
)

var _ recommendation.LetterDrafter = (*Client)(nil) // interface compliance check

const letterInstructions = `You write recommendation letters for college applications on behalf of a referee.
Write a warm, specific letter of 400 to 500 words, signed by the referee, using only the facts provided.
Do not invent achievements. Write in the language the answers are written in.
Reply with the letter text only.`

// DraftLetter writes a letter from the referee's answers about the student.
func (c *Client) DraftLetter(ctx context.Context, req recommendation.LetterRequest) (string, error) {
	letter, err := c.complete(ctx, "letter", letterInstructions, letterUserPrompt(req), false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(letter), nil
}

func letterUserPrompt(req recommendation.LetterRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Referee: %s", req.RefereeName)
	if req.RefereeRole != "" {
		fmt.Fprintf(&b, ", %s", req.RefereeRole)
	}
	fmt.Fprintf(&b, "\nStudent: %s\n\n", req.StudentName)

	a := req.Answers
	for _, qa := range []struct{ q, a string }{
		{"How long have you known the student?", a.RelationshipDuration},
		{"In what context have you worked together?", a.WorkingRelationship},
		{"A meaningful project of the student", a.MeaningfulProject},
		{"A notable moment", a.NotableMoment},
		{"Difficulties the student overcame", a.DifficultiesOvercome},
		{"Other notes", a.Notes},
	} {
		if strings.TrimSpace(qa.a) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", qa.q, qa.a)
	}
	if len(a.Strengths) > 0 {
		fmt.Fprintf(&b, "Strengths: %s\n\n", strings.Join(a.Strengths, ", "))
	}
	if req.CounselorNotes != "" {
		fmt.Fprintf(&b, "Counselor notes: %s\n", req.CounselorNotes)
	}
	return b.String()
}
