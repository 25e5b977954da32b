package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/DoyleJ11/lumberjack-backend/internal/config"
	"github.com/DoyleJ11/lumberjack-backend/internal/game"
	"github.com/DoyleJ11/lumberjack-backend/internal/hub"
	"github.com/DoyleJ11/lumberjack-backend/internal/session"
	"github.com/DoyleJ11/lumberjack-backend/internal/store"
	"go.uber.org/zap"
)

// Identity headers set by the Telegram mini-app proxy.
const (
	HeaderPlayerID  = "X-Player-ID"
	HeaderUsername  = "X-Player-Username"
	HeaderFirstName = "X-Player-First-Name"
	HeaderLastName  = "X-Player-Last-Name"
	HeaderPhotoURL  = "X-Player-Photo-URL"
)

type API struct {
	svc    *game.Service
	events []config.Event
	log    *zap.Logger
}

func NewAPI(svc *game.Service, events []config.Event, log *zap.Logger) *API {
	return &API{svc: svc, events: events, log: log}
}

type startRequest struct {
	EventID string `json:"eventId"`
}

type startResponse struct {
	Status    string           `json:"status"`
	GameState session.Snapshot `json:"game_state"`
}

// moveRequest accepts either {"direction":"left"} or the older
// {"answer":true}, where true means left.
type moveRequest struct {
	Direction string `json:"direction"`
	Answer    *bool  `json:"answer"`
}

type continueResponse struct {
	Status    game.Status      `json:"status"`
	GameState session.Snapshot `json:"game_state"`
}

type gameOverResponse struct {
	Status game.Status `json:"status"`
	game.GameOver
}

func identity(r *http.Request) store.Profile {
	return store.Profile{
		PlayerID:  r.Header.Get(HeaderPlayerID),
		Username:  r.Header.Get(HeaderUsername),
		FirstName: r.Header.Get(HeaderFirstName),
		LastName:  r.Header.Get(HeaderLastName),
		PhotoURL:  r.Header.Get(HeaderPhotoURL),
	}
}

func (a *API) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.EventID != "" && len(a.events) > 0 && !a.knownEvent(req.EventID) {
		writeError(w, http.StatusBadRequest, "unknown event")
		return
	}

	snap, err := a.svc.StartRound(r.Context(), identity(r), req.EventID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Status: "started", GameState: snap})
}

func (a *API) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	direction := req.Direction
	if direction == "" && req.Answer != nil {
		direction = "right"
		if *req.Answer {
			direction = "left"
		}
	}

	res, err := a.svc.ApplyMove(r.Context(), r.Header.Get(HeaderPlayerID), direction)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if res.Status == game.StatusGameOver {
		writeJSON(w, http.StatusOK, gameOverResponse{Status: res.Status, GameOver: *res.GameOver})
		return
	}
	writeJSON(w, http.StatusOK, continueResponse{Status: res.Status, GameState: res.Snapshot})
}

// TimeOut ends the caller's round. A player with no round gets an empty
// game over so the client can reset without an error path.
func (a *API) TimeOut(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.RequestTimeout(r.Context(), r.Header.Get(HeaderPlayerID))
	if errors.Is(err, game.ErrNotFound) {
		writeJSON(w, http.StatusOK, gameOverResponse{Status: game.StatusGameOver})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gameOverResponse{Status: game.StatusGameOver, GameOver: out})
}

func (a *API) State(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.State(r.Context(), r.Header.Get(HeaderPlayerID))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.svc.GetLeaderboard(r.Context(), r.Header.Get(HeaderPlayerID), r.URL.Query().Get("eventId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	events := a.events
	if events == nil {
		events = []config.Event{}
	}
	writeJSON(w, http.StatusOK, struct {
		Events []config.Event `json:"events"`
	}{Events: events})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) knownEvent(id string) bool {
	return slices.ContainsFunc(a.events, func(e config.Event) bool { return e.ID == id })
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hub.ErrHubClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		a.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("player_id", r.Header.Get(HeaderPlayerID)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads an optional JSON body; an empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
