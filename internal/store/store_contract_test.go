package store

import (
	"context"
	"testing"

	"github.com/DoyleJ11/lumberjack-backend/internal/leaderboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoreStore interface {
	EnsurePlayer(ctx context.Context, p Profile) error
	RecordScore(ctx context.Context, playerID string, score int, roundContext string) error
	BestScore(ctx context.Context, playerID string) (int, error)
	BestScores(ctx context.Context, roundContext string) ([]leaderboard.Score, error)
	Profiles(ctx context.Context, playerIDs []string) (map[string]Profile, error)
}

func byPlayer(scores []leaderboard.Score) map[string]int {
	out := make(map[string]int, len(scores))
	for _, s := range scores {
		out[s.PlayerID] = s.BestScore
	}
	return out
}

// runStoreContract exercises the behaviour both store implementations share.
func runStoreContract(t *testing.T, s scoreStore) {
	ctx := context.Background()

	t.Run("ensure player keeps the first profile", func(t *testing.T) {
		require.NoError(t, s.EnsurePlayer(ctx, Profile{PlayerID: "1", Username: "first"}))
		require.NoError(t, s.EnsurePlayer(ctx, Profile{PlayerID: "1", Username: "second"}))

		profiles, err := s.Profiles(ctx, []string{"1", "missing"})
		require.NoError(t, err)
		require.Len(t, profiles, 1)
		assert.Equal(t, "first", profiles["1"].Username)
	})

	t.Run("best score spans every context", func(t *testing.T) {
		best, err := s.BestScore(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 0, best)

		require.NoError(t, s.RecordScore(ctx, "1", 4, ""))
		require.NoError(t, s.RecordScore(ctx, "1", 9, "cup"))
		require.NoError(t, s.RecordScore(ctx, "1", 6, ""))

		best, err = s.BestScore(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 9, best)
	})

	t.Run("best scores are scoped to one context", func(t *testing.T) {
		require.NoError(t, s.RecordScore(ctx, "2", 7, ""))
		require.NoError(t, s.RecordScore(ctx, "2", 3, "cup"))

		free, err := s.BestScores(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"1": 6, "2": 7}, byPlayer(free))

		cup, err := s.BestScores(ctx, "cup")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"1": 9, "2": 3}, byPlayer(cup))

		none, err := s.BestScores(ctx, "other")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}
