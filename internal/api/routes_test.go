package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/internal/auth"
	"github.com/satriahrh/kmfl/server/internal/responder"
	"github.com/satriahrh/kmfl/server/internal/websocket"
	"github.com/satriahrh/kmfl/server/usecase"
)

type testServer struct {
	echo   *echo.Echo
	hub    *websocket.Hub
	issuer *auth.TokenIssuer
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	catalog, err := responder.DefaultCatalog()
	require.NoError(t, err)

	hub := websocket.NewHub(websocket.HubConfig{
		Responder:  responder.New(catalog),
		Controller: usecase.DefaultControllerConfig(),
	}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	e := echo.New()
	InitRoutes(e, hub, issuer, zap.NewNop())

	return &testServer{echo: e, hub: hub, issuer: issuer}
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createSession(t *testing.T) CreateSessionResponse {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/sessions", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// connect opens a websocket for the session through a real listener
func (s *testServer) connect(t *testing.T, session CreateSessionResponse) {
	t.Helper()
	server := httptest.NewServer(s.echo)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + session.Token
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		_, ok := s.hub.Session(session.SessionID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	assert.JSONEq(t, `{"status": "ok", "service": "kmfl-server", "sessions": 0}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	s := setupTestServer(t)
	s.do(http.MethodGet, "/health", "", "")

	rec := s.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kmfl_http_requests_total")
}

func TestCreateSession(t *testing.T) {
	s := setupTestServer(t)
	resp := s.createSession(t)

	if resp.SessionID == "" {
		t.Fatal("Expected a session id")
	}
	claims, err := s.issuer.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, claims.SessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)
	assert.Equal(t, 1, s.hub.PendingSessions())
}

func TestSessionRoutesRequireMatchingToken(t *testing.T) {
	s := setupTestServer(t)
	session := s.createSession(t)
	other := s.createSession(t)

	tests := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{name: "missing token", token: "", status: http.StatusUnauthorized, code: "missing_token"},
		{name: "garbage token", token: "not-a-jwt", status: http.StatusUnauthorized, code: "invalid_token"},
		{name: "other session", token: other.Token, status: http.StatusForbidden, code: "session_mismatch"},
		{name: "not connected", token: session.Token, status: http.StatusNotFound, code: "session_not_connected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/v1/sessions/"+session.SessionID, tt.token, "")
			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, rec.Code)
			}
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
		})
	}
}

func TestConnectedSession(t *testing.T) {
	s := setupTestServer(t)
	session := s.createSession(t)
	s.connect(t, session)
	path := "/api/v1/sessions/" + session.SessionID

	assert.Equal(t, 0, s.hub.PendingSessions())

	rec := s.do(http.MethodGet, "/health", "", "")
	assert.JSONEq(t, `{"status": "ok", "service": "kmfl-server", "sessions": 1}`, rec.Body.String())

	rec = s.do(http.MethodGet, path, session.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "idle", snap.State)
	assert.Equal(t, `Waiting for wake word: "K.M.F.L."`, snap.Status)
	assert.Equal(t, float64(3), snap.Settings.SilenceTimeout)

	rec = s.do(http.MethodPut, path+"/settings", session.Token, `{"volume": 0.5, "silence_timeout": 7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"silence_timeout": 7, "volume": 0.5, "sound_enabled": true}`, rec.Body.String())

	rec = s.do(http.MethodPut, path+"/settings", session.Token, `{"silence_timeout": 30}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_settings")

	require.Eventually(t, func() bool {
		rec := s.do(http.MethodGet, path+"/log", session.Token, "")
		var log LogResponse
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &log) == nil &&
			len(log.Entries) > 0
	}, 5*time.Second, 10*time.Millisecond)

	rec = s.do(http.MethodDelete, path+"/log", session.Token, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, path+"/log", session.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id": "`+session.SessionID+`", "entries": []}`, rec.Body.String())
}

func TestWebSocketAuth(t *testing.T) {
	s := setupTestServer(t)
	session := s.createSession(t)

	rec := s.do(http.MethodGet, "/ws", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/ws?token=bogus", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.connect(t, session)

	server := httptest.NewServer(s.echo)
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + session.Token
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
