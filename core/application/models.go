package application

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/essay"
)

const dateLayout = "2006-01-02"

type Type string

const (
	TypeEarlyDecision   Type = "early_decision"
	TypeEarlyAction     Type = "early_action"
	TypeRegularDecision Type = "regular_decision"
	TypeRolling         Type = "rolling"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusApproved   Status = "approved"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusSent, StatusApproved:
		return true
	}
	return false
}

// Submitted reports whether the application went out already.
func (s Status) Submitted() bool {
	return s == StatusSent || s == StatusApproved
}

type Application struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	SchoolName string    `json:"school_name"`
	Program    string    `json:"program"`
	Type       Type      `json:"application_type"`
	Deadline   time.Time `json:"deadline"`
	Status     Status    `json:"status"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SlotStatus is the progress of one essay requirement.
type SlotStatus string

const (
	SlotNotStarted SlotStatus = "not_started"
	SlotDraft      SlotStatus = "draft"
	SlotInReview   SlotStatus = "in_review"
	SlotApproved   SlotStatus = "approved"
)

func (s SlotStatus) IsValid() bool {
	_, ok := slotTransitions[s]
	return ok
}

// Slot is an essay an application requires, optionally linked to a draft.
// DraftID is nil exactly when Status is SlotNotStarted.
type Slot struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	StudentID     string     `json:"student_id"`
	DraftID       *string    `json:"essay_feedback_id"`
	Label         string     `json:"label"`
	Prompt        string     `json:"prompt"`
	WordLimit     *int       `json:"word_limit"`
	Status        SlotStatus `json:"status"`
	DisplayOrder  int        `json:"display_order"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Submission is the immutable record written when an application is submitted.
type Submission struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	StudentID     string          `json:"student_id"`
	SubmittedAt   time.Time       `json:"submitted_at"`
	Essays        []EssaySnapshot `json:"essays"`
	Notes         string          `json:"notes"`
}

type EssaySnapshot struct {
	SlotID    string     `json:"slot_id"`
	Label     string     `json:"label"`
	DraftID   string     `json:"draft_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	WordCount int        `json:"word_count"`
	SentAt    *time.Time `json:"sent_at"`
}

// Progress holds the values derived from the live slots, drafts and recommendations.
type Progress struct {
	RequiredEssays           int      `json:"required_essays"`
	CompletedEssays          int      `json:"completed_essays"`
	CompletionPercentage     int      `json:"completion_percentage"`
	RequestedRecommendations int      `json:"requested_recommendations"`
	SubmittedRecommendations int      `json:"submitted_recommendations"`
	Urgent                   bool     `json:"urgent"`
	AverageAIScore           *float64 `json:"average_ai_score"`
	CanSubmit                bool     `json:"can_submit"`
}

// SlotView is a slot along with what its linked draft looks like now.
type SlotView struct {
	Slot
	DraftTitle  string       `json:"draft_title,omitempty"`
	DraftStatus essay.Status `json:"draft_status,omitempty"`
	WordCount   int          `json:"word_count"`
	OverLimit   bool         `json:"over_limit"`
}

type Detail struct {
	Application
	Slots    []SlotView `json:"essays"`
	Progress Progress   `json:"progress"`
}

// NewApplication contains information needed to create a new Application.
type NewApplication struct {
	StudentID  string `json:"student_id" validate:"omitempty,uuid"`
	SchoolName string `json:"school_name" validate:"required,notblank,max=200"`
	Program    string `json:"program" validate:"max=200"`
	Type       Type   `json:"application_type" validate:"required,oneof=early_decision early_action regular_decision rolling"`
	Deadline   string `json:"deadline" validate:"required,datetime=2006-01-02"`
	Notes      string `json:"notes" validate:"max=10000"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.SchoolName = core.CleanString(na.SchoolName)
	na.Program = core.CleanString(na.Program)
	return validate.Struct(na)
}

// UpdateApplication defines what may change on an Application. Status `sent` is reserved to submission.
type UpdateApplication struct {
	SchoolName *string `json:"school_name" validate:"omitempty,notblank,max=200"`
	Program    *string `json:"program" validate:"omitempty,max=200"`
	Type       *Type   `json:"application_type" validate:"omitempty,oneof=early_decision early_action regular_decision rolling"`
	Deadline   *string `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	Status     *Status `json:"status" validate:"omitempty,oneof=draft in_progress"`
	Notes      *string `json:"notes" validate:"omitempty,max=10000"`
}

func (ua *UpdateApplication) Validate(validate *validator.Validate) error {
	if ua.SchoolName != nil {
		name := core.CleanString(*ua.SchoolName)
		ua.SchoolName = &name
	}
	return validate.Struct(ua)
}

type NewSlot struct {
	Label     string `json:"label" validate:"required,notblank,max=200"`
	Prompt    string `json:"prompt" validate:"max=5000"`
	WordLimit *int   `json:"word_limit" validate:"omitempty,min=1"`
}

func (ns *NewSlot) Validate(validate *validator.Validate) error {
	ns.Label = core.CleanString(ns.Label)
	ns.Prompt = core.CleanString(ns.Prompt)
	return validate.Struct(ns)
}

type UpdateSlot struct {
	Label     *string `json:"label" validate:"omitempty,notblank,max=200"`
	Prompt    *string `json:"prompt" validate:"omitempty,max=5000"`
	WordLimit *int    `json:"word_limit" validate:"omitempty,min=1"`
}

func (us *UpdateSlot) Validate(validate *validator.Validate) error {
	if us.Label != nil {
		label := core.CleanString(*us.Label)
		us.Label = &label
	}
	return validate.Struct(us)
}

type ReorderSlots struct {
	SlotIDs []string `json:"slot_ids" validate:"required,min=1,dive,uuid"`
}

type LinkDraft struct {
	DraftID string `json:"draft_id" validate:"required,uuid"`
}

type TransitionSlot struct {
	Status SlotStatus `json:"status" validate:"required,oneof=not_started draft in_review approved"`
}

type Submit struct {
	Notes string `json:"notes" validate:"max=10000"`
}

type QueryFilter struct {
	StudentID    string   `query:"student_id"`
	Statuses     []string `query:"status"`
	DeadlineFrom string   `query:"deadline_from"`
	DeadlineTo   string   `query:"deadline_to"`
	Search       string   `query:"search"`

	// set by Clean and by the service from the actor's visibility
	From       time.Time `query:"-"`
	To         time.Time `query:"-"`
	StudentIDs []string  `query:"-"`
}

// Clean normalizes the filter and parses the deadline range (YYYY-MM-DD, both ends inclusive).
func (qf *QueryFilter) Clean() error {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.Search = core.CleanString(qf.Search)

	var fieldErrs []core.FieldError
	for _, st := range qf.Statuses {
		if !Status(st).IsValid() {
			fieldErrs = append(fieldErrs, core.FieldError{Field: "status", Error: "invalid value"})
			break
		}
	}
	var err error
	if qf.DeadlineFrom != "" {
		if qf.From, err = time.Parse(dateLayout, qf.DeadlineFrom); err != nil {
			fieldErrs = append(fieldErrs, core.FieldError{Field: "deadline_from", Error: "invalid date"})
		}
	}
	if qf.DeadlineTo != "" {
		if qf.To, err = time.Parse(dateLayout, qf.DeadlineTo); err != nil {
			fieldErrs = append(fieldErrs, core.FieldError{Field: "deadline_to", Error: "invalid date"})
		}
	}
	if len(fieldErrs) > 0 {
		return core.NewValidationError(nil, fieldErrs...)
	}
	return nil
}
