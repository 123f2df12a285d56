package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashish23jun/One-Call/internal/metrics"
	"github.com/Ashish23jun/One-Call/internal/store"
	"github.com/Ashish23jun/One-Call/internal/token"
)

type apiEnv struct {
	t      *testing.T
	ts     *httptest.Server
	tokens *token.Service
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	reg := prometheus.NewRegistry()
	tokens := token.NewService("api-test-secret", nil)
	api := New(Config{
		Store:      store.NewMemoryStore(),
		Tokens:     tokens,
		Metrics:    metrics.New(reg),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		DefaultTTL: time.Hour,
	})

	ts := httptest.NewServer(api.Router(reg))
	t.Cleanup(ts.Close)
	return &apiEnv{t: t, ts: ts, tokens: tokens}
}

func (e *apiEnv) do(method, path string, headers map[string]string, body any) (*http.Response, map[string]any) {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(e.t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)

	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(e.t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

// createApp registers an app and returns its id and one-time secret.
func (e *apiEnv) createApp(name string) (id, secret string) {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/apps", nil, map[string]any{"name": name})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string), body["secret"].(string)
}

func auth(id, secret string) map[string]string {
	return map[string]string{"x-app-id": id, "x-app-secret": secret}
}

func TestCreateAppReturnsSecretOnce(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(http.MethodPost, "/apps", nil, map[string]any{"name": "acme"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "acme", body["name"])
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["secret"])
	assert.NotEmpty(t, body["createdAt"])

	// Listings never echo the secret.
	resp, _ = env.do(http.MethodGet, "/apps", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAppValidation(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(http.MethodPost, "/apps", nil, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_MESSAGE", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestRoomEndpointsRequireAuth(t *testing.T) {
	env := newAPIEnv(t)
	id, secret := env.createApp("acme")

	resp, body := env.do(http.MethodPost, "/rooms", nil, map[string]any{"name": "r"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["error"])

	resp, body = env.do(http.MethodPost, "/rooms", auth(id, "wrong-secret"), map[string]any{"name": "r"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["error"])

	resp, body = env.do(http.MethodPost, "/rooms", auth("ghost", secret), map[string]any{"name": "r"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["error"])
}

func TestCreateAndListRooms(t *testing.T) {
	env := newAPIEnv(t)
	id, secret := env.createApp("acme")

	resp, room := env.do(http.MethodPost, "/rooms", auth(id, secret),
		map[string]any{"name": "standup", "maxParticipants": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, id, room["appId"])
	assert.Equal(t, float64(2), room["maxParticipants"])

	resp, _ = env.do(http.MethodGet, "/rooms/"+room["id"].(string), auth(id, secret), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Default seat count applies when the body omits it.
	resp, room2 := env.do(http.MethodPost, "/rooms", auth(id, secret), map[string]any{"name": "other"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(store.DefaultMaxParticipants), room2["maxParticipants"])

	resp, body := env.do(http.MethodPost, "/rooms", auth(id, secret),
		map[string]any{"name": "bad", "maxParticipants": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_MESSAGE", body["error"])
}

func TestRoomsAreTenantScoped(t *testing.T) {
	env := newAPIEnv(t)
	id1, secret1 := env.createApp("acme")
	id2, secret2 := env.createApp("globex")

	_, room := env.do(http.MethodPost, "/rooms", auth(id1, secret1), map[string]any{"name": "r1"})
	roomID := room["id"].(string)

	// The other tenant cannot read or mint grants for it.
	resp, body := env.do(http.MethodGet, "/rooms/"+roomID, auth(id2, secret2), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "TENANT_MISMATCH", body["error"])

	resp, body = env.do(http.MethodPost, "/rooms/"+roomID+"/token", auth(id2, secret2),
		map[string]any{"userId": "eve", "role": "participant"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "TENANT_MISMATCH", body["error"])
}

func TestIssueToken(t *testing.T) {
	env := newAPIEnv(t)
	id, secret := env.createApp("acme")
	_, room := env.do(http.MethodPost, "/rooms", auth(id, secret), map[string]any{"name": "r"})
	roomID := room["id"].(string)

	resp, body := env.do(http.MethodPost, "/rooms/"+roomID+"/token", auth(id, secret),
		map[string]any{"userId": "alice", "role": "host", "expiresIn": "30m"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["expiresAt"])

	claims, err := env.tokens.Verify(context.Background(), body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, id, claims.AppID)
	assert.Equal(t, roomID, claims.RoomID)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, token.RoleHost, claims.Role)
}

func TestIssueTokenValidation(t *testing.T) {
	env := newAPIEnv(t)
	id, secret := env.createApp("acme")
	_, room := env.do(http.MethodPost, "/rooms", auth(id, secret), map[string]any{"name": "r"})
	path := "/rooms/" + room["id"].(string) + "/token"

	resp, body := env.do(http.MethodPost, path, auth(id, secret),
		map[string]any{"userId": "", "role": "host"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_MESSAGE", body["error"])

	resp, _ = env.do(http.MethodPost, path, auth(id, secret),
		map[string]any{"userId": "alice", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(http.MethodPost, path, auth(id, secret),
		map[string]any{"userId": "alice", "role": "host", "expiresIn": "2w"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(http.MethodPost, "/rooms/no-such-room/token", auth(id, secret),
		map[string]any{"userId": "alice", "role": "host"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}
