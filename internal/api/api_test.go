package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupflight/flightgroup/internal/api"
	"github.com/groupflight/flightgroup/internal/api/apierr"
	"github.com/groupflight/flightgroup/internal/api/request"
	"github.com/groupflight/flightgroup/internal/api/response"
	"github.com/groupflight/flightgroup/internal/factory"
	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
	"github.com/groupflight/flightgroup/internal/testutil"
)

const testToken = "operator-token"

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()

	router := api.NewRouter(api.RouterConfig{
		Logger:     testutil.NopLogger(),
		Dispatcher: app.Dispatcher,
		Socket:     app.Gateway,
		Groups:     app.Groups,
		Pilots:     app.Identity,
		APIToken:   testToken,
	})

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// event builds a forwarded invocation for a connection
func event(t *testing.T, conn, routeKey, action string, body any) request.EventRequest {
	t.Helper()
	req := request.EventRequest{
		RequestContext: request.EventContext{ConnectionID: conn, RouteKey: routeKey},
	}
	if action != "" {
		frame, err := protocol.Encode(action, body)
		require.NoError(t, err)
		req.Body = string(frame)
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierr.APIError {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var health response.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 0, health.Connections)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodPost, "/api/v1/events", event(t, "ext-1", protocol.RouteConnect, "", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apierr.CodeUnauthorized, decodeError(t, rec).Code)

	rec = ts.request(http.MethodGet, "/api/v1/groups/abc", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventRejectsMissingConnection(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodPost, "/api/v1/events", event(t, "", protocol.RouteConnect, "", nil), testToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	raw := httptest.NewRecorder()
	ts.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestEventsAlwaysAcknowledge(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string]request.EventRequest{
		"connect":      event(t, "ext-1", protocol.RouteConnect, "", nil),
		"unknown":      event(t, "ext-1", "$default", "launchRocket", map[string]any{}),
		"garbage body": {RequestContext: request.EventContext{ConnectionID: "ext-1", RouteKey: "$default"}, Body: "%%%"},
		"disconnect":   event(t, "ext-1", protocol.RouteDisconnect, "", nil),
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			rec := ts.request(http.MethodPost, "/api/v1/events", ev, testToken)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{}`, rec.Body.String())
		})
	}
}

func TestAuthEventOpensSessionAndGroup(t *testing.T) {
	ts := newTestServer(t)
	ctx := t.Context()

	ev := event(t, "ext-1", "$default", protocol.ActionAuthRequest, protocol.AuthRequest{
		Pilot:      protocol.PilotMeta{Name: "Alice"},
		APIVersion: protocol.APIVersion,
	})
	rec := ts.request(http.MethodPost, "/api/v1/events", ev, testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	session, ok := ts.app.Identity.ResolveSession(ctx, "ext-1")
	require.True(t, ok)
	pilot, ok := ts.app.Identity.ResolvePilot(ctx, session.PilotID)
	require.True(t, ok)
	require.True(t, pilot.InGroup())

	rec = ts.request(http.MethodGet, "/api/v1/groups/"+string(pilot.GroupID), nil, testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var group response.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))
	assert.Equal(t, pilot.GroupID, group.ID)
	require.Len(t, group.Pilots, 1)
	assert.Equal(t, "Alice", group.Pilots[0].Name)
	assert.True(t, group.Pilots[0].Online)
	assert.Equal(t, 0, group.Waypoints)
}

func TestGroupNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/api/v1/groups/missing", nil, testToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierr.CodeGroupNotFound, decodeError(t, rec).Code)
}

func TestWebsocketThroughRouter(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()
	defer func() { _ = ts.app.Gateway.Shutdown(t.Context()) }()

	ctx := t.Context()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	body, err := json.Marshal(protocol.AuthRequest{Pilot: protocol.PilotMeta{Name: "Alice"}, APIVersion: protocol.APIVersion})
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, protocol.Envelope{Action: protocol.ActionAuthRequest, Body: body}))

	var env protocol.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	require.Equal(t, protocol.ActionAuthResponse, env.Action)

	var resp protocol.AuthResponse
	require.NoError(t, json.Unmarshal(env.Body, &resp))
	assert.Equal(t, protocol.CodeSuccess, resp.Status)
	assert.NotEqual(t, model.GroupID(""), resp.Group)

	rec := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	var health response.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, 1, health.Connections)
}
