package application

import (
	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("application not found")
	ErrSlotNotFound       = errors.New("essay not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadySubmitted   = errors.New("the application was already submitted")
	ErrNotSubmittable     = errors.New("every essay must be linked to a draft whose feedback was sent")
	ErrInvalidTransition  = errors.New("invalid essay status transition")
	ErrDraftRequired      = errors.New("link a draft to start this essay")
	ErrDraftOwner         = errors.New("the draft belongs to another student")
	ErrNotSent            = errors.New("only sent applications can be approved")
	ErrInvalidOrder       = errors.New("slot_ids must list every essay of the application exactly once")
)
