package recommendation

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/admitdesk/admitdesk/core"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusDrafted   Status = "drafted"
	StatusSubmitted Status = "submitted"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusDrafted, StatusSubmitted:
		return true
	}
	return false
}

// Answers is the questionnaire a student fills for the referee.
type Answers struct {
	RelationshipDuration string   `json:"relationship_duration" validate:"max=500"`
	WorkingRelationship  string   `json:"working_relationship" validate:"max=5000"`
	MeaningfulProject    string   `json:"meaningful_project" validate:"max=5000"`
	NotableMoment        string   `json:"notable_moment" validate:"max=5000"`
	DifficultiesOvercome string   `json:"difficulties_overcome" validate:"max=5000"`
	Strengths            []string `json:"strengths" validate:"max=20,dive,max=200"`
	Notes                string   `json:"notes" validate:"max=5000"`
}

// Recommendation is a letter requested from a referee on behalf of a student.
type Recommendation struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"student_id"`
	CounselorID    *string    `json:"counselor_id"`
	ApplicationID  *string    `json:"application_id"`
	RefereeName    string     `json:"referee_name"`
	RefereeRole    string     `json:"referee_role"`
	RefereeEmail   string     `json:"referee_email"`
	Status         Status     `json:"status"`
	Answers        Answers    `json:"answers"`
	CounselorNotes string     `json:"counselor_notes"`
	LetterText     string     `json:"letter_text"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
}

// NewRecommendation contains information needed to request a letter.
type NewRecommendation struct {
	StudentID     string  `json:"student_id" validate:"omitempty,uuid"`
	ApplicationID *string `json:"application_id" validate:"omitempty,uuid"`
	RefereeName   string  `json:"referee_name" validate:"required,notblank,max=200"`
	RefereeRole   string  `json:"referee_role" validate:"max=200"`
	RefereeEmail  string  `json:"referee_email" validate:"omitempty,email"`
}

func (nr *NewRecommendation) Validate(validate *validator.Validate) error {
	nr.RefereeName = core.CleanString(nr.RefereeName)
	nr.RefereeRole = core.CleanString(nr.RefereeRole)
	nr.RefereeEmail = core.CleanString(nr.RefereeEmail, true /* lower */)
	return validate.Struct(nr)
}

type UpdateAnswers struct {
	Answers Answers `json:"answers"`
}

func (ua *UpdateAnswers) Validate(validate *validator.Validate) error {
	ua.Answers.Strengths = cleanList(ua.Answers.Strengths)
	return validate.Struct(ua)
}

type DraftLetter struct {
	CounselorNotes *string `json:"counselor_notes" validate:"omitempty,max=5000"`
}

type UpdateLetter struct {
	LetterText     string  `json:"letter_text" validate:"required,notblank,max=20000"`
	CounselorNotes *string `json:"counselor_notes" validate:"omitempty,max=5000"`
}

type QueryFilter struct {
	StudentID     string   `query:"student_id"`
	ApplicationID string   `query:"application_id"`
	Statuses      []string `query:"status"`

	// set by the service from the actor's visibility
	StudentIDs []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.ApplicationID = core.CleanString(qf.ApplicationID)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = core.CleanString(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
