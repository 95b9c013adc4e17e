package essay

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/admitdesk/admitdesk/core"
)

// Status is the review state of a Draft. It only moves forward.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusRead       Status = "read"
)

var (
	Statuses = []Status{StatusDraft, StatusInProgress, StatusSent, StatusRead}

	statusTransitions = map[Status][]Status{
		StatusDraft:      {StatusInProgress, StatusSent},
		StatusInProgress: {StatusSent},
		StatusSent:       {StatusRead},
		StatusRead:       {},
	}
)

func (s Status) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// ReachedSent reports whether feedback was sent to the student.
func (s Status) ReachedSent() bool {
	return s == StatusSent || s == StatusRead
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Draft is a piece of student writing plus the counselor's review of it.
type Draft struct {
	ID              string          `json:"id"`
	StudentID       string          `json:"student_id"`
	CounselorID     *string         `json:"counselor_id"`
	Title           string          `json:"title"`
	Prompt          string          `json:"prompt"`
	Content         string          `json:"content"`
	WordCount       int             `json:"word_count"`
	Analysis        *AnalysisResult `json:"ai_analysis"`
	FeedbackItems   []FeedbackItem  `json:"feedback_items"`
	PersonalMessage string          `json:"personal_message"`
	ReviewedContent *string         `json:"-"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	SentAt          *time.Time      `json:"sent_at"`
}

// transition moves d to status `to`, stamping SentAt when feedback gets sent.
// An illegal move leaves d untouched.
func (d *Draft) transition(to Status, now time.Time) error {
	if d.Status == to {
		return nil
	}
	if !d.Status.CanTransitionTo(to) {
		return newTransitionError(d.Status, to)
	}
	d.Status = to
	if to == StatusSent {
		d.SentAt = &now
	}
	d.UpdatedAt = now
	return nil
}

// startReview moves a fresh draft to in_progress once a counselor works on it.
func (d *Draft) startReview(now time.Time) bool {
	if d.Status != StatusDraft {
		return false
	}
	_ = d.transition(StatusInProgress, now)
	return true
}

// FeedbackKind tells where a FeedbackItem comes from.
type FeedbackKind string

const (
	FeedbackAI     FeedbackKind = "ai"
	FeedbackManual FeedbackKind = "manual"
)

// FeedbackItem is a comment a counselor attached to a Draft. ID is its identity within the Draft.
type FeedbackItem struct {
	ID              string       `json:"id"`
	Kind            FeedbackKind `json:"kind"`
	IssueID         string       `json:"issue_id,omitempty"`
	CriterionID     string       `json:"criterion_id,omitempty"`
	CriterionName   string       `json:"criterion_name,omitempty"`
	Color           string       `json:"color,omitempty"`
	StartIndex      *int         `json:"start_index,omitempty"`
	EndIndex        *int         `json:"end_index,omitempty"`
	HighlightedText string       `json:"highlighted_text,omitempty"`
	Comment         string       `json:"comment"`
	Severity        string       `json:"severity,omitempty"`
	AuthorID        string       `json:"author_id"`
	CreatedAt       time.Time    `json:"created_at"`
}

// appendFeedbackItem returns items with item appended, rejecting an identity already present.
func appendFeedbackItem(items []FeedbackItem, item FeedbackItem) ([]FeedbackItem, error) {
	for _, existing := range items {
		if existing.ID == item.ID {
			return items, ErrDuplicateFeedbackItem
		}
	}
	out := make([]FeedbackItem, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item), nil
}

// NewDraft contains information needed to create a new Draft.
type NewDraft struct {
	StudentID string `json:"student_id" validate:"omitempty,uuid"`
	Title     string `json:"title" validate:"required,notblank,max=200"`
	Prompt    string `json:"prompt" validate:"max=5000"`
	Content   string `json:"content" validate:"max=60000"`
}

func (nd *NewDraft) Validate(validate *validator.Validate) error {
	nd.Title = core.CleanString(nd.Title)
	nd.Prompt = core.CleanString(nd.Prompt)
	return validate.Struct(nd)
}

// UpdateDraft defines what a student may change on their Draft.
type UpdateDraft struct {
	Title   *string `json:"title" validate:"omitempty,notblank,max=200"`
	Prompt  *string `json:"prompt" validate:"omitempty,max=5000"`
	Content *string `json:"content" validate:"omitempty,max=60000"`
}

func (ud *UpdateDraft) Validate(validate *validator.Validate) error {
	if ud.Title != nil {
		title := core.CleanString(*ud.Title)
		ud.Title = &title
	}
	return validate.Struct(ud)
}

// NewFeedbackItem is what a counselor submits to comment a Draft.
// AI items reference an issue of the stored analysis; manual items carry their own comment and range.
type NewFeedbackItem struct {
	ID         string       `json:"id" validate:"omitempty,max=100"`
	Kind       FeedbackKind `json:"kind" validate:"required,oneof=ai manual"`
	IssueID    string       `json:"issue_id" validate:"required_if=Kind ai"`
	Comment    string       `json:"comment" validate:"max=5000"`
	StartIndex *int         `json:"start_index" validate:"omitempty,min=0"`
	EndIndex   *int         `json:"end_index" validate:"omitempty,min=0"`
	Severity   string       `json:"severity" validate:"omitempty,oneof=low medium high"`
}

func (nfi *NewFeedbackItem) Validate(validate *validator.Validate) error {
	nfi.Comment = core.CleanString(nfi.Comment)
	if err := validate.Struct(nfi); err != nil {
		return err
	}
	if nfi.Kind == FeedbackManual && nfi.Comment == "" {
		return core.NewValidationError(ErrEmptyComment, core.FieldError{Field: "comment", Error: "this field is required"})
	}
	if (nfi.StartIndex == nil) != (nfi.EndIndex == nil) {
		return core.NewValidationError(errInvalidRange, core.FieldError{Field: "end_index", Error: errInvalidRange.Error()})
	}
	return nil
}

// SendFeedback is the counselor's final note sent along with the review.
type SendFeedback struct {
	Message string `json:"message" validate:"max=10000"`
}

func (sf *SendFeedback) Validate(validate *validator.Validate) error {
	sf.Message = strings.TrimSpace(sf.Message)
	return validate.Struct(sf)
}

type QueryFilter struct {
	StudentID string   `query:"student_id"`
	Statuses  []string `query:"status"`
	Search    string   `query:"search"`

	// set by the service from the actor's visibility
	StudentIDs []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.StudentID = core.CleanString(qf.StudentID)
}
