package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/engine"
	"github.com/DoyleJ11/lumberjack-backend/internal/game"
	"github.com/DoyleJ11/lumberjack-backend/internal/hub"
	"github.com/DoyleJ11/lumberjack-backend/internal/notify"
	"github.com/DoyleJ11/lumberjack-backend/internal/store"
	"github.com/DoyleJ11/lumberjack-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type leftRand struct{}

func (leftRand) IntN(int) int { return 0 }

func setup(t *testing.T, origins ...string) (*game.Service, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	log := zaptest.NewLogger(t)

	opts := game.DefaultOptions()
	opts.Clock = clockwork.NewFakeClock()
	opts.NewRand = func() engine.Rand { return leftRand{} }
	svc := game.NewService(ctx, hub.NewHub(ctx, log), store.NewMemory(), notify.Nop{}, log, opts)

	srv := httptest.NewServer(Handler(svc, origins, log))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Shutdown(context.Background())
		cancel()
	})
	return svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func read(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, payload))
}

func TestHandler_StreamsRound(t *testing.T) {
	svc, url := setup(t)
	ctx := context.Background()

	_, err := svc.StartRound(ctx, store.Profile{PlayerID: "p1"}, "")
	require.NoError(t, err)

	conn, _, err := websocket.Dial(ctx, url+"?player=p1", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := read(t, conn)
	require.Equal(t, types.MsgSnapshot, first.Type)
	require.NotNil(t, first.State)
	require.Equal(t, 0, first.State.Score)

	send(t, conn, types.ClientMessage{Type: types.MsgMove, Direction: "left"})
	moved := read(t, conn)
	require.Equal(t, types.MsgSnapshot, moved.Type)
	require.Equal(t, 1, moved.State.Score)

	send(t, conn, types.ClientMessage{Type: types.MsgMove, Direction: "sideways"})
	bad := read(t, conn)
	require.Equal(t, types.MsgError, bad.Type)

	send(t, conn, types.ClientMessage{Type: types.MsgTimeOut})
	var over types.ServerMessage
	for over.Type != types.MsgGameOver {
		over = read(t, conn) // the ending snapshot may arrive first
	}
	require.Equal(t, 1, over.GameOver.FinalScore)
	require.Equal(t, engine.ReasonTimeout, over.GameOver.Reason)
}

func TestHandler_RejectsUnknownPlayer(t *testing.T) {
	_, url := setup(t)

	_, resp, err := websocket.Dial(context.Background(), url+"?player=ghost", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.Dial(context.Background(), url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginPatterns(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "https://web.telegram.org", want: "web.telegram.org"},
		{in: "http://localhost:5173", want: "localhost:5173"},
		{in: "*.example.com", want: "*.example.com"},
		{in: "*", want: "*"},
	}
	for _, tc := range cases {
		got := OriginPatterns([]string{tc.in})
		if len(got) != 1 || got[0] != tc.want {
			t.Fatalf("OriginPatterns(%q) = %v, want [%s]", tc.in, got, tc.want)
		}
	}
}

func TestHandler_AcceptsConfiguredOrigin(t *testing.T) {
	svc, url := setup(t, "https://web.telegram.org")
	ctx := context.Background()

	_, err := svc.StartRound(ctx, store.Profile{PlayerID: "p1"}, "")
	require.NoError(t, err)

	conn, _, err := websocket.Dial(ctx, url+"?player=p1", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://web.telegram.org"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := read(t, conn)
	require.Equal(t, types.MsgSnapshot, first.Type)

	_, resp, err := websocket.Dial(ctx, url+"?player=p1", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
