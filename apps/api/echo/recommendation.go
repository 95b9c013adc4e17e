package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core/recommendation"
)

type recommendationApi struct {
	svc      *recommendation.Service
	validate *validator.Validate
}

func registerRecommendationAPI(g *echo.Group, auth, aiLimit echo.MiddlewareFunc, svc *recommendation.Service, validate *validator.Validate) {
	api := recommendationApi{svc: svc, validate: validate}

	rg := g.Group("/recommendations", auth)
	rg.POST("", api.request)
	rg.GET("", api.query)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id/answers", api.updateAnswers)
	rg.POST("/:id/letter/draft", api.draftLetter, staffMiddleware(), aiLimit)
	rg.PUT("/:id/letter", api.updateLetter, staffMiddleware())
	rg.POST("/:id/submitted", api.markSubmitted, staffMiddleware())
}

// Handlers

func (api *recommendationApi) request(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data recommendation.NewRecommendation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecommendation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Request(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "requesting recommendation")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *recommendationApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(recommendation.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []recommendation.Recommendation{})
	}
	filter.Clean()

	recs, err := api.svc.Query(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying recommendations")
	}
	if recs == nil {
		recs = []recommendation.Recommendation{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *recommendationApi) retrieve(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting recommendation")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recommendationApi) updateAnswers(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data recommendation.UpdateAnswers
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnswers")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.UpdateAnswers(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating answers")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recommendationApi) draftLetter(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data recommendation.DraftLetter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftLetter")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	rec, err := api.svc.DraftLetter(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "drafting letter")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recommendationApi) updateLetter(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data recommendation.UpdateLetter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLetter")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	rec, err := api.svc.UpdateLetter(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating letter")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *recommendationApi) markSubmitted(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.MarkSubmitted(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking recommendation submitted")
	}
	return ctx.JSON(http.StatusOK, rec)
}
