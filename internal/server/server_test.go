package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialogtool/internal/compiler"
	"dialogtool/internal/session"
)

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	d, err := compiler.CompileFile("../compiler/testdata/savings.xml", compiler.Options{})
	require.NoError(t, err)
	sessions := session.NewManager()
	return New(&session.Conversation{Dialog: d}, sessions, nil), sessions
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndIntents(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = do(t, s, http.MethodGet, "/api/intents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	intents := decode[[]map[string]any](t, rec)
	require.Len(t, intents, 3)
	assert.Equal(t, "Savings_Rate", intents[0]["name"])
}

func TestConversationFlow(t *testing.T) {
	s, sessions := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]string](t, rec)["session_id"]
	require.NotEmpty(t, id)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":"quel est le taux","intent":"Savings_Rate"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	reply := decode[session.Reply](t, rec)
	assert.Equal(t, session.ReplyQuestion, reply.Kind)
	assert.Equal(t, []string{"Livret A", "PEL"}, reply.Options)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":"livret A"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	reply = decode[session.Reply](t, rec)
	assert.Equal(t, session.ReplyAnswer, reply.Kind)
	assert.Equal(t, "/intent/Savings_Rate/product_entity/Livret_A", reply.MappingURI)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string]any](t, rec)["history"], 4)

	rec = do(t, s, http.MethodDelete, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, sessions.Count())
}

func TestPostMessage_Errors(t *testing.T) {
	s, sessions := newTestServer(t)
	id := sessions.Create("").SessionID

	rec := do(t, s, http.MethodPost, "/api/sessions/unknown/messages", `{"text":"taux"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":"taux"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no classifier")

	rec = do(t, s, http.MethodDelete, "/api/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStart_StopsWithContext(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	cancel()
	assert.NoError(t, <-done)
}
