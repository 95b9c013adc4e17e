package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/services/metrics"
)

type applicationApi struct {
	svc      *application.Service
	validate *validator.Validate
}

func registerApplicationAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *application.Service, validate *validator.Validate) {
	api := applicationApi{svc: svc, validate: validate}

	ag := g.Group("/applications", auth)
	ag.POST("", api.create)
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)
	ag.POST("/:id/approve", api.approve, staffMiddleware())
	ag.POST("/:id/essays", api.createSlot)
	ag.PUT("/:id/essays/order", api.reorderSlots)
	ag.POST("/:id/submit", api.submit)
	ag.GET("/:id/submission", api.submission)

	eg := g.Group("/essays", auth)
	eg.PUT("/:id", api.updateSlot)
	eg.DELETE("/:id", api.destroySlot)
	eg.PUT("/:id/draft", api.linkDraft)
	eg.DELETE("/:id/draft", api.unlinkDraft)
	eg.PUT("/:id/status", api.transitionSlot)

	g.GET("/submissions", api.submissions, auth)
}

// Handlers

func (api *applicationApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *applicationApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(application.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []application.Detail{})
	}
	if err := filter.Clean(); err != nil {
		return err
	}
	ordering := bindOrdering(ctx)

	apps, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []application.Detail{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *applicationApi) retrieve(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) update(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.UpdateApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) approve(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.svc.Approve(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) createSlot(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.NewSlot
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSlot")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	slot, err := api.svc.CreateSlot(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating essay")
	}
	return ctx.JSON(http.StatusCreated, slot)
}

func (api *applicationApi) reorderSlots(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.ReorderSlots
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderSlots")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	slots, err := api.svc.ReorderSlots(ctx.Request().Context(), actor, ctx.Param("id"), data.SlotIDs)
	if err != nil {
		return errors.Wrap(err, "reordering essays")
	}
	return ctx.JSON(http.StatusOK, slots)
}

func (api *applicationApi) updateSlot(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.UpdateSlot
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSlot")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	slot, err := api.svc.UpdateSlot(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating essay")
	}
	return ctx.JSON(http.StatusOK, slot)
}

func (api *applicationApi) destroySlot(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteSlot(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting essay")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *applicationApi) linkDraft(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.LinkDraft
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkDraft")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	slot, err := api.svc.LinkDraft(ctx.Request().Context(), actor, ctx.Param("id"), data.DraftID)
	if err != nil {
		return errors.Wrap(err, "linking draft")
	}
	return ctx.JSON(http.StatusOK, slot)
}

func (api *applicationApi) unlinkDraft(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	slot, err := api.svc.UnlinkDraft(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unlinking draft")
	}
	return ctx.JSON(http.StatusOK, slot)
}

func (api *applicationApi) transitionSlot(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.TransitionSlot
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransitionSlot")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	slot, err := api.svc.TransitionSlot(ctx.Request().Context(), actor, ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "moving essay")
	}
	return ctx.JSON(http.StatusOK, slot)
}

func (api *applicationApi) submit(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data application.Submit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submit")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	metrics.Submissions.Inc()
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *applicationApi) submission(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *applicationApi) submissions(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), actor, ctx.QueryParam("student_id"))
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if subs == nil {
		subs = []application.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}
