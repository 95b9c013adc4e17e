// Package aisvc talks to an OpenAI-compatible chat model to score essays and draft letters.
package aisvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/services/metrics"
)

// Client sends chat completions to the configured model. Calls are never retried.
type Client struct {
	api    *openai.Client
	model  string
	rubric Rubric
	logger core.Logger
}

func NewClient(conf core.AIConfig, rubric Rubric, logger core.Logger) *Client {
	cfg := openai.DefaultConfig(conf.APIKey)
	if conf.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(conf.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: conf.Timeout}
	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		model:  conf.Model,
		rubric: rubric,
		logger: logger,
	}
}

// completeJSON asks the model for a JSON object and decodes it into dest.
func (c *Client) completeJSON(ctx context.Context, op, system, user string, dest interface{}) error {
	reply, err := c.complete(ctx, op, system, user, true)
	if err != nil {
		return err
	}
	raw := extractJSON(reply)
	if raw == "" {
		return core.NewCollaboratorError(core.CollaboratorUnavailable, "The AI reply could not be read.", errors.New("no JSON object in reply"))
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return core.NewCollaboratorError(core.CollaboratorUnavailable, "The AI reply could not be read.", errors.Wrap(err, "json.Unmarshal"))
	}
	return nil
}

func (c *Client) complete(ctx context.Context, op, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		cerr := classify(err)
		metrics.ObserveAI(op, cerr.Kind, time.Since(start))
		c.logger.Warn("ai."+op, err)
		return "", cerr
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.ObserveAI(op, core.CollaboratorUnavailable, time.Since(start))
		return "", core.NewCollaboratorError(core.CollaboratorUnavailable, "The AI returned an empty reply.", nil)
	}
	metrics.ObserveAI(op, "ok", time.Since(start))
	return resp.Choices[0].Message.Content, nil
}

// classify maps a client error onto a CollaboratorError: 429 is rate_limited, 402 is
// payment_required and everything else is unavailable.
func classify(err error) *core.CollaboratorError {
	var (
		status int
		msg    string
	)
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		if msg == "" {
			msg = "Too many AI requests. Please try again in a moment."
		}
		return &core.CollaboratorError{Kind: core.CollaboratorRateLimited, Message: msg, Err: err}
	case http.StatusPaymentRequired:
		if msg == "" {
			msg = "AI credits are exhausted."
		}
		return &core.CollaboratorError{Kind: core.CollaboratorPaymentRequired, Message: msg, Err: err}
	}
	return &core.CollaboratorError{Kind: core.CollaboratorUnavailable, Message: msg, Err: err}
}
