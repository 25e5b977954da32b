package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DoyleJ11/lumberjack-backend/internal/config"
	"github.com/DoyleJ11/lumberjack-backend/internal/engine"
	"github.com/DoyleJ11/lumberjack-backend/internal/game"
	"github.com/DoyleJ11/lumberjack-backend/internal/hub"
	"github.com/DoyleJ11/lumberjack-backend/internal/notify"
	"github.com/DoyleJ11/lumberjack-backend/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type leftRand struct{}

func (leftRand) IntN(int) int { return 0 }

func newServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	log := zaptest.NewLogger(t)

	mem := store.NewMemory()
	opts := game.DefaultOptions()
	opts.Clock = clockwork.NewFakeClock()
	opts.NewRand = func() engine.Rand { return leftRand{} }
	svc := game.NewService(ctx, hub.NewHub(ctx, log), mem, notify.Nop{}, log, opts)

	events := []config.Event{{ID: "spring-cup", Name: "Spring Cup"}}
	srv := httptest.NewServer(SetupRoutes(NewAPI(svc, events, log), []string{"https://web.telegram.org"}))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Shutdown(context.Background())
		cancel()
	})
	return srv, mem
}

func do(t *testing.T, srv *httptest.Server, method, path, playerID, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if playerID != "" {
		req.Header.Set(HeaderPlayerID, playerID)
		req.Header.Set(HeaderUsername, playerID+"_name")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestAPI_RoundFlow(t *testing.T) {
	srv, mem := newServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/start", "42", `{"eventId":"spring-cup"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "started", body["status"])
	state := body["game_state"].(map[string]any)
	assert.Equal(t, true, state["game_active"])
	assert.Equal(t, float64(15), state["time_left"])
	assert.Len(t, state["branches"], engine.TrackLen)

	resp, body = do(t, srv, http.MethodPost, "/api/move", "42", `{"answer":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "continue", body["status"])
	assert.Equal(t, float64(1), body["game_state"].(map[string]any)["score"])

	resp, body = do(t, srv, http.MethodPost, "/api/move", "42", `{"direction":"left"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "game_over", body["status"])
	assert.Equal(t, float64(1), body["final_score"])
	assert.Equal(t, float64(1), body["top_score"])
	assert.Equal(t, "hit_branch", body["reason"])
	assert.Equal(t, "spring-cup", body["eventId"])

	resp, body = do(t, srv, http.MethodPost, "/api/timeOut", "42", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["final_score"])

	require.Len(t, mem.Scores(), 1)

	resp, body = do(t, srv, http.MethodGet, "/api/leaderboard?eventId=spring-cup", "42", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	top := body["top"].([]any)
	require.Len(t, top, 1)
	first := top[0].(map[string]any)
	assert.Equal(t, "42", first["telegramId"])
	assert.Equal(t, "42_name", first["username"])
	assert.Equal(t, float64(1), first["rank"])
	assert.NotNil(t, body["currentUser"])

	resp, body = do(t, srv, http.MethodGet, "/api/leaderboard", "42", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["top"])
	assert.Nil(t, body["currentUser"])
}

func TestAPI_Errors(t *testing.T) {
	srv, _ := newServer(t)

	cases := []struct {
		name     string
		method   string
		path     string
		playerID string
		body     string
		want     int
	}{
		{name: "start without player", method: http.MethodPost, path: "/api/start", want: http.StatusUnauthorized},
		{name: "start with unknown event", method: http.MethodPost, path: "/api/start", playerID: "7", body: `{"eventId":"nope"}`, want: http.StatusBadRequest},
		{name: "start with bad json", method: http.MethodPost, path: "/api/start", playerID: "7", body: `{`, want: http.StatusBadRequest},
		{name: "move without round", method: http.MethodPost, path: "/api/move", playerID: "7", body: `{"direction":"left"}`, want: http.StatusNotFound},
		{name: "move with bad direction", method: http.MethodPost, path: "/api/move", playerID: "7", body: `{"direction":"up"}`, want: http.StatusBadRequest},
		{name: "move without direction", method: http.MethodPost, path: "/api/move", playerID: "7", body: `{}`, want: http.StatusBadRequest},
		{name: "state without round", method: http.MethodGet, path: "/api/state", playerID: "7", want: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, srv, tc.method, tc.path, tc.playerID, tc.body)
			require.Equal(t, tc.want, resp.StatusCode)
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestAPI_TimeOutWithoutRound(t *testing.T) {
	srv, _ := newServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/timeOut", "7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "game_over", body["status"])
	assert.Equal(t, float64(0), body["final_score"])
}

func TestAPI_Events(t *testing.T) {
	srv, _ := newServer(t)

	resp, body := do(t, srv, http.MethodGet, "/api/events", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "spring-cup", events[0].(map[string]any)["id"])
}

func TestAPI_CORSPreflight(t *testing.T) {
	srv, _ := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/move", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://web.telegram.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	// browsers send requested header names lowercased
	req.Header.Set("Access-Control-Request-Headers", "x-player-id")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "https://web.telegram.org", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	resp, _ := do(t, srv, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
