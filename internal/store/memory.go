package store

import (
	"context"
	"sync"

	"github.com/DoyleJ11/lumberjack-backend/internal/leaderboard"
)

// Memory keeps players and scores in process. Used when no database is
// configured and in tests.
type Memory struct {
	mu     sync.RWMutex
	users  map[string]Profile
	scores []Score
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]Profile)}
}

func (m *Memory) EnsurePlayer(ctx context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[p.PlayerID]; !ok {
		m.users[p.PlayerID] = p
	}
	return nil
}

func (m *Memory) RecordScore(ctx context.Context, playerID string, score int, roundContext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, Score{
		ID:             uint(len(m.scores) + 1),
		Score:          score,
		UserTelegramID: playerID,
		EventID:        eventID(roundContext),
	})
	return nil
}

func (m *Memory) BestScore(ctx context.Context, playerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best := 0
	for _, s := range m.scores {
		if s.UserTelegramID == playerID {
			best = max(best, s.Score)
		}
	}
	return best, nil
}

func (m *Memory) BestScores(ctx context.Context, roundContext string) ([]leaderboard.Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	best := make(map[string]int)
	var order []string
	for _, s := range m.scores {
		if !sameContext(s.EventID, roundContext) {
			continue
		}
		prev, seen := best[s.UserTelegramID]
		if !seen {
			order = append(order, s.UserTelegramID)
		}
		if !seen || s.Score > prev {
			best[s.UserTelegramID] = s.Score
		}
	}

	out := make([]leaderboard.Score, 0, len(order))
	for _, id := range order {
		out = append(out, leaderboard.Score{PlayerID: id, BestScore: best[id]})
	}
	return out, nil
}

func (m *Memory) Profiles(ctx context.Context, playerIDs []string) (map[string]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Profile, len(playerIDs))
	for _, id := range playerIDs {
		if p, ok := m.users[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Scores returns a copy of every recorded round.
func (m *Memory) Scores() []Score {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Score, len(m.scores))
	copy(out, m.scores)
	return out
}

func (m *Memory) Close() error { return nil }

func sameContext(eventID *string, roundContext string) bool {
	if eventID == nil {
		return roundContext == ""
	}
	return *eventID == roundContext
}
