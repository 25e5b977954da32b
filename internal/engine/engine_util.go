package engine

import (
	"math/rand/v2"
)

// Rand is the slice of math/rand/v2 the generator needs. Tests inject a
// scripted source.
type Rand interface {
	IntN(n int) int
}

// NewRand returns a time-seeded source safe for use by one goroutine.
func NewRand() Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

type Branch struct {
	Side  Side `json:"side"`
	Level int  `json:"level"`
}

// Generate picks the next branch. After an empty slot either lane is equally
// likely. After a branch, a pick of the other lane collapses to an empty
// slot, so a run can only continue on the same side or break.
// Level is carried through unchanged; it does not scale difficulty.
func Generate(rng Rand, level int, previous Side) Branch {
	picked := SideLeft
	if rng.IntN(2) == 1 {
		picked = SideRight
	}

	if previous != SideNone && previous != "" && picked != previous {
		picked = SideNone
	}

	return Branch{Side: picked, Level: level}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
