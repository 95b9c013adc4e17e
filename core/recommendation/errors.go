package recommendation

import (
	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("recommendation not found")
	ErrAlreadySubmitted = errors.New("the recommendation was already submitted")
	ErrApplicationOwner = errors.New("the application belongs to another student")
)
