package game

import (
	"context"
	"fmt"

	"github.com/DoyleJ11/lumberjack-backend/internal/leaderboard"
	"github.com/DoyleJ11/lumberjack-backend/internal/store"
)

type LeaderboardEntry struct {
	store.Profile
	Score int `json:"score"`
	Rank  int `json:"rank"`
}

type Leaderboard struct {
	Top         []LeaderboardEntry `json:"top"`
	CurrentUser *LeaderboardEntry  `json:"currentUser"`
}

// GetLeaderboard ranks best scores within roundContext ("" is free play) and
// decorates the top entries and the caller's own entry with profiles.
func (s *Service) GetLeaderboard(ctx context.Context, playerID, roundContext string) (Leaderboard, error) {
	scores, err := s.store.BestScores(ctx, roundContext)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("leaderboard: %w", err)
	}

	board := leaderboard.Build(scores, playerID, s.opts.LeaderboardSize)
	profiles, err := s.store.Profiles(ctx, board.PlayerIDs())
	if err != nil {
		return Leaderboard{}, fmt.Errorf("leaderboard profiles: %w", err)
	}

	decorate := func(e leaderboard.Entry) LeaderboardEntry {
		p, ok := profiles[e.PlayerID]
		if !ok {
			p = store.Profile{PlayerID: e.PlayerID}
		}
		return LeaderboardEntry{Profile: p, Score: e.BestScore, Rank: e.Rank}
	}

	out := Leaderboard{Top: make([]LeaderboardEntry, 0, len(board.Top))}
	for _, e := range board.Top {
		out.Top = append(out.Top, decorate(e))
	}
	if board.Self != nil {
		self := decorate(*board.Self)
		out.CurrentUser = &self
	}
	return out, nil
}
