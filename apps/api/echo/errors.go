package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/message"
	"github.com/admitdesk/admitdesk/core/recommendation"
	"github.com/admitdesk/admitdesk/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests      = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
)

var (
	notFoundErrs = []error{
		user.ErrNotFound,
		essay.ErrNotFound,
		essay.ErrIssueNotFound,
		application.ErrNotFound,
		application.ErrSlotNotFound,
		application.ErrSubmissionNotFound,
		recommendation.ErrNotFound,
		message.ErrNotFound,
	}
	conflictErrs = []error{
		application.ErrAlreadySubmitted,
		recommendation.ErrAlreadySubmitted,
		essay.ErrDuplicateFeedbackItem,
	}
	collaboratorCodes = map[string]int{
		core.CollaboratorRateLimited:     http.StatusTooManyRequests,
		core.CollaboratorPaymentRequired: http.StatusPaymentRequired,
		core.CollaboratorUnavailable:     http.StatusBadGateway,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationMessage(vErr *core.ValidationError) interface{} {
	if len(vErr.Fields) == 0 {
		return vErr.Error()
	}
	fldErrs := make(map[string]string, len(vErr.Fields))
	for _, fErr := range vErr.Fields {
		fldErrs[fErr.Field] = fErr.Error
	}
	return fldErrs
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var (
			httpErr   *echo.HTTPError
			fieldErrs validator.ValidationErrors
			vErr      *core.ValidationError
			collabErr *core.CollaboratorError
		)

		switch {
		case errors.As(err, &httpErr):
			if httpErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = httpErr.Message
				break
			}
			if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
				httpErr = herr
			}
			code = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &fieldErrs):
			fldErrs := make(map[string]string, len(fieldErrs))
			for _, fErr := range fieldErrs {
				fldErrs[fErr.Field()] = fErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case isAny(err, conflictErrs):
			code = http.StatusConflict
			message = errors.Cause(err).Error()
			if errors.As(err, &vErr) {
				message = validationMessage(vErr)
			}
		case errors.As(err, &vErr):
			code = http.StatusBadRequest
			message = validationMessage(vErr)
		case errors.As(err, &collabErr):
			code = collaboratorCodes[collabErr.Kind]
			if code == 0 {
				code = http.StatusBadGateway
			}
			message = collabErr.Error()
		case errors.Is(err, core.ErrUnauthenticated):
			code = errUnauthorized.Code
			message = errUnauthorized.Message
		case errors.Is(err, core.ErrForbidden):
			code = errHttpForbidden.Code
			message = errHttpForbidden.Message
		case errors.Is(err, user.ErrAuthenticationFailed):
			code = errAuthenticationFailed.Code
			message = errAuthenticationFailed.Message
		case errors.Is(err, user.ErrAccountDeactivated):
			code = errAccountDeactivated.Code
			message = errAccountDeactivated.Message
		case isAny(err, notFoundErrs):
			code = http.StatusNotFound
			message = errors.Cause(err).Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			if actor, ok := actorFrom(ctx); ok {
				logger.Error(msg, errors.Wrap(err, msg), actor)
			} else {
				logger.Error(msg, errors.Wrap(err, msg))
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
