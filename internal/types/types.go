package types

import (
	"github.com/DoyleJ11/lumberjack-backend/internal/game"
	"github.com/DoyleJ11/lumberjack-backend/internal/session"
)

const (
	MsgMove     = "Move"
	MsgTimeOut  = "TimeOut"
	MsgSnapshot = "StateSnapshot"
	MsgGameOver = "GameOver"
	MsgError    = "Error"
)

type ClientMessage struct {
	Type      string `json:"type"` // "Move" | "TimeOut"
	Direction string `json:"direction,omitempty"`
}

type ServerMessage struct {
	Type     string            `json:"type"` // "StateSnapshot" | "GameOver" | "Error"
	Version  int               `json:"version,omitempty"`
	State    *session.Snapshot `json:"state,omitempty"`
	GameOver *game.GameOver    `json:"game_over,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func Snapshot(snap session.Snapshot) ServerMessage {
	return ServerMessage{Type: MsgSnapshot, Version: snap.Version, State: &snap}
}

func GameOver(g game.GameOver) ServerMessage {
	return ServerMessage{Type: MsgGameOver, GameOver: &g}
}

func Error(msg string) ServerMessage {
	return ServerMessage{Type: MsgError, Error: msg}
}
