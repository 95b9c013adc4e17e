package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core/essay"
)

type draftApi struct {
	svc      *essay.Service
	validate *validator.Validate
}

func registerDraftAPI(g *echo.Group, auth, aiLimit echo.MiddlewareFunc, svc *essay.Service, validate *validator.Validate) {
	api := draftApi{svc: svc, validate: validate}

	dg := g.Group("/drafts", auth)
	dg.POST("", api.create)
	dg.GET("", api.query)
	dg.GET("/:id", api.retrieve)
	dg.PUT("/:id", api.update)
	dg.GET("/:id/highlights", api.highlights)
	dg.GET("/:id/changes", api.changes)
	dg.POST("/:id/read", api.markRead)
	dg.POST("/:id/analyze", api.analyze, aiLimit)

	// review endpoints
	dg.POST("/:id/feedback-items", api.recordFeedbackItem, staffMiddleware())
	dg.POST("/:id/send", api.send, staffMiddleware())
}

// Handlers

func (api *draftApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data essay.NewDraft
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDraft")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating draft")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *draftApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(essay.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []essay.Draft{})
	}
	filter.Clean()
	ordering := bindOrdering(ctx)

	drafts, err := api.svc.Query(ctx.Request().Context(), actor, filter, ordering)
	if err != nil {
		return errors.Wrap(err, "querying drafts")
	}
	if drafts == nil {
		drafts = []essay.Draft{}
	}
	return ctx.JSON(http.StatusOK, drafts)
}

func (api *draftApi) retrieve(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting draft")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *draftApi) update(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data essay.UpdateDraft
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDraft")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.UpdateContent(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating draft")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *draftApi) analyze(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.Analyze(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "analyzing draft")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *draftApi) recordFeedbackItem(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data essay.NewFeedbackItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeedbackItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.RecordFeedbackItem(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording feedback item")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *draftApi) send(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data essay.SendFeedback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendFeedback")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.SendFeedback(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending feedback")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *draftApi) markRead(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.MarkRead(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking draft read")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *draftApi) highlights(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	hls, err := api.svc.Highlights(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing highlights")
	}
	if hls == nil {
		hls = []essay.Highlight{}
	}
	return ctx.JSON(http.StatusOK, hls)
}

func (api *draftApi) changes(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	changes, err := api.svc.Changes(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing changes")
	}
	return ctx.JSON(http.StatusOK, changes)
}
