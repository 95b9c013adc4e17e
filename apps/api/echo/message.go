package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core/message"
)

type messageApi struct {
	svc      *message.Service
	validate *validator.Validate
}

func registerMessageAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *message.Service, validate *validator.Validate) {
	api := messageApi{svc: svc, validate: validate}

	mg := g.Group("/messages", auth)
	mg.POST("", api.send)
	mg.GET("/unread-count", api.unreadCount)
	mg.GET("/with/:user_id", api.conversation)
	mg.POST("/with/:user_id/read", api.markConversationRead)
	mg.POST("/:id/read", api.markRead)
}

// Handlers

func (api *messageApi) send(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data message.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *messageApi) conversation(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.Conversation(ctx.Request().Context(), actor, ctx.Param("user_id"))
	if err != nil {
		return errors.Wrap(err, "loading conversation")
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) markRead(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	msg, err := api.svc.MarkRead(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking message read")
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *messageApi) markConversationRead(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkConversationRead(ctx.Request().Context(), actor, ctx.Param("user_id"))
	if err != nil {
		return errors.Wrap(err, "marking conversation read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *messageApi) unreadCount(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.UnreadCount(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

type CountResponse struct {
	Count int `json:"count"`
}
