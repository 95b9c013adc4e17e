package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/services/metrics"
	"github.com/admitdesk/admitdesk/services/ratelimit"
)

// roleMiddleware lets the request through when allowed accepts the actor.
func roleMiddleware(allowed func(core.Actor) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if allowed(actor) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(core.Actor.IsAdmin)
}

// staffMiddleware admits counselors and admins.
func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(core.Actor.IsStaff)
}

// rateLimitMiddleware throttles each actor separately within bucket.
func rateLimitMiddleware(limiter *ratelimit.Limiter, bucket string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getActor(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context actor")
			}
			if !limiter.Allow(ctx.Request().Context(), bucket+":"+actor.ID) {
				metrics.RateLimited.WithLabelValues(bucket).Inc()
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
