package server

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"dialogtool/internal/session"
)

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) healthHandler(c echo.Context) error {
	type healthResponse struct {
		Status   string `json:"status"`
		Dialog   string `json:"dialog"`
		Sessions int    `json:"sessions"`
	}

	return c.JSON(http.StatusOK, healthResponse{
		Status:   "ok",
		Dialog:   s.conv.Dialog.FilePath,
		Sessions: s.sessions.Count(),
	})
}

func (s *Server) listIntentsHandler(c echo.Context) error {
	type intentResponse struct {
		Name   string `json:"name"`
		Folder string `json:"folder"`
		Line   int    `json:"line"`
	}

	intents := s.conv.Dialog.IntentNodes()
	resp := make([]intentResponse, 0, len(intents))
	for _, n := range intents {
		resp = append(resp, intentResponse{Name: n.Intent.Name, Folder: n.Intent.Folder, Line: n.Line})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) createSessionHandler(c echo.Context) error {
	type createSessionParams struct {
		Group string `json:"group"`
	}

	type createSessionResponse struct {
		SessionID string `json:"session_id"`
		Group     string `json:"group,omitempty"`
	}

	params := new(createSessionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
	}

	group := strings.TrimSpace(params.Group)
	if group != "" && len(s.conv.Dialog.Groups()) > 0 && !slices.Contains(s.conv.Dialog.Groups(), group) {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Unknown federation group"})
	}

	sess := s.sessions.Create(group)
	return c.JSON(http.StatusCreated, createSessionResponse{SessionID: sess.SessionID, Group: sess.Group})
}

func (s *Server) getSessionHandler(c echo.Context) error {
	type getSessionParams struct {
		SessionID string `param:"id" validate:"required"`
	}

	type getSessionResponse struct {
		SessionID string            `json:"session_id"`
		Group     string            `json:"group,omitempty"`
		History   []session.Message `json:"history"`
	}

	params := new(getSessionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	sess, err := s.sessions.Get(params.SessionID)
	if err != nil {
		return c.JSON(http.StatusNotFound, messageResponse{Message: "Session not found"})
	}
	return c.JSON(http.StatusOK, getSessionResponse{SessionID: sess.SessionID, Group: sess.Group, History: sess.GetHistory()})
}

func (s *Server) postMessageHandler(c echo.Context) error {
	type postMessageParams struct {
		SessionID string `param:"id" validate:"required"`
		Text      string `json:"text" validate:"required"`
		Intent    string `json:"intent"`
	}

	params := new(postMessageParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
	}
	params.Text = strings.TrimSpace(params.Text)
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "text is required"})
	}

	sess, err := s.sessions.Get(params.SessionID)
	if err != nil {
		return c.JSON(http.StatusNotFound, messageResponse{Message: "Session not found"})
	}

	reply, err := s.conv.Handle(c.Request().Context(), sess, params.Text, strings.TrimSpace(params.Intent))
	if errors.Is(err, session.ErrNoClassifier) {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "intent is required when no classifier is configured"})
	}
	if err != nil {
		s.logger.Error("Failed to handle message", zap.String("session", sess.SessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) deleteSessionHandler(c echo.Context) error {
	type deleteSessionParams struct {
		SessionID string `param:"id" validate:"required"`
	}

	params := new(deleteSessionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	if err := s.sessions.Delete(params.SessionID); err != nil {
		return c.JSON(http.StatusNotFound, messageResponse{Message: "Session not found"})
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Session deleted successfully"})
}
