package leaderboard

import (
	"cmp"
	"slices"
)

const DefaultTopN = 5

// Score is one player's best score, already aggregated by the store.
type Score struct {
	PlayerID  string
	BestScore int
}

type Entry struct {
	PlayerID  string `json:"player_id"`
	BestScore int    `json:"score"`
	Rank      int    `json:"rank"`
}

type Board struct {
	Top  []Entry `json:"top"`
	Self *Entry  `json:"currentUser"`
}

// Rank sorts scores best first and assigns competition ranks: equal scores
// share a rank, and the next lower score is ranked by its 1-based position.
// Ties are ordered by player id so the output is stable.
func Rank(scores []Score) []Entry {
	sorted := slices.Clone(scores)
	slices.SortFunc(sorted, func(a, b Score) int {
		if c := cmp.Compare(b.BestScore, a.BestScore); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})

	entries := make([]Entry, len(sorted))
	rank := 0
	for i, s := range sorted {
		if i == 0 || s.BestScore < sorted[i-1].BestScore {
			rank = i + 1
		}
		entries[i] = Entry{PlayerID: s.PlayerID, BestScore: s.BestScore, Rank: rank}
	}
	return entries
}

// Build ranks scores and returns the first n entries plus playerID's own
// entry, if it has one.
func Build(scores []Score, playerID string, n int) Board {
	ranked := Rank(scores)

	board := Board{Top: ranked[:min(n, len(ranked))]}
	if i := slices.IndexFunc(ranked, func(e Entry) bool { return e.PlayerID == playerID }); i >= 0 {
		self := ranked[i]
		board.Self = &self
	}
	return board
}

// PlayerIDs lists the players that appear on the board, each once.
func (b Board) PlayerIDs() []string {
	ids := make([]string, 0, len(b.Top)+1)
	for _, e := range b.Top {
		ids = append(ids, e.PlayerID)
	}
	if b.Self != nil && !slices.Contains(ids, b.Self.PlayerID) {
		ids = append(ids, b.Self.PlayerID)
	}
	return ids
}
