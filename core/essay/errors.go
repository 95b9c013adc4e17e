package essay

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
)

var (
	ErrNotFound              = errors.New("essay draft not found")
	ErrDuplicateFeedbackItem = errors.New("a feedback item with this id already exists")
	ErrInvalidTransition     = errors.New("invalid draft status transition")
	ErrIssueNotFound         = errors.New("issue not found in the analysis")
	ErrEmptyContent          = errors.New("the draft has no content to analyze")
	ErrEmptyComment          = errors.New("manual feedback needs a comment")

	errInvalidRange = errors.New("start_index and end_index must both be set within the content")
)

func newTransitionError(from, to Status) error {
	return core.NewValidationError(
		errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to),
		core.FieldError{Field: "status", Error: fmt.Sprintf("cannot move a draft from %s to %s", from, to)},
	)
}
