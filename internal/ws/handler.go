package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/game"
	"github.com/DoyleJ11/lumberjack-backend/internal/session"
	"github.com/DoyleJ11/lumberjack-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 60 * time.Second
)

// Handler streams a player's round snapshots and accepts moves over the same
// socket. Browsers cannot set headers on an upgrade, so the player id may
// also come from the "player" query parameter.
func Handler(svc *game.Service, allowedOrigins []string, log *zap.Logger) http.HandlerFunc {
	originPatterns := OriginPatterns(allowedOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.Header.Get("X-Player-ID")
		if playerID == "" {
			playerID = r.URL.Query().Get("player")
		}
		if playerID == "" {
			http.Error(w, "missing player", http.StatusUnauthorized)
			return
		}

		// make sure there is a round before upgrading
		if _, err := svc.State(r.Context(), playerID); err != nil {
			if errors.Is(err, game.ErrNotFound) {
				http.Error(w, "round not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := log.With(zap.String("player_id", playerID), zap.String("client_id", clientID))

		out := make(chan session.Snapshot, 8)
		stop, err := svc.Watch(r.Context(), playerID, clientID, out)
		if err != nil {
			conn.Close(websocket.StatusPolicyViolation, "round not found")
			return
		}
		defer stop()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		send := make(chan types.ServerMessage, 8)
		go func() {
			defer writeCancel()
			for {
				var msg types.ServerMessage
				select {
				case <-writeCtx.Done():
					return
				case snap, ok := <-out:
					if !ok {
						// session replaced or evicted
						conn.Close(websocket.StatusNormalClosure, "round closed")
						return
					}
					msg = types.Snapshot(snap)
				case msg = <-send:
				}
				if err := write(writeCtx, conn, msg); err != nil {
					log.Debug("websocket write failed", zap.Error(err))
					return
				}
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				queue(writeCtx, send, types.Error("bad json"))
				continue
			}

			if reply, ok := dispatch(r.Context(), svc, playerID, cm); ok {
				queue(writeCtx, send, reply)
			}
		}
	}
}

// dispatch runs a client command. Snapshots of a continuing round arrive via
// the watch, so only game over and errors produce a direct reply.
func dispatch(ctx context.Context, svc *game.Service, playerID string, cm types.ClientMessage) (types.ServerMessage, bool) {
	switch cm.Type {
	case types.MsgMove:
		res, err := svc.ApplyMove(ctx, playerID, cm.Direction)
		if err != nil {
			return types.Error(err.Error()), true
		}
		if res.Status == game.StatusGameOver {
			return types.GameOver(*res.GameOver), true
		}
		return types.ServerMessage{}, false
	case types.MsgTimeOut:
		out, err := svc.RequestTimeout(ctx, playerID)
		if err != nil {
			return types.Error(err.Error()), true
		}
		return types.GameOver(out), true
	default:
		return types.Error("unknown type"), true
	}
}

// OriginPatterns turns full origins ("https://web.telegram.org") into the
// host patterns the websocket origin check matches against.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

func queue(ctx context.Context, send chan<- types.ServerMessage, msg types.ServerMessage) {
	select {
	case send <- msg:
	case <-ctx.Done():
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
