package engine

import "encoding/json"

const TrackLen = 5

// Track is a fixed ring of upcoming branches. Logical index 0 is padding,
// index 1 is the branch threatening the player, 2..4 are look-ahead.
type Track struct {
	slots [TrackLen]Branch
	head  int
}

func (t *Track) Reset(branches [TrackLen]Branch) {
	t.slots = branches
	t.head = 0
}

func (t Track) At(i int) Branch {
	return t.slots[(t.head+i)%TrackLen]
}

func (t Track) Threat() Branch { return t.At(1) }

func (t Track) Last() Branch { return t.At(TrackLen - 1) }

// Advance drops the padding slot and appends next as the new last slot.
func (t *Track) Advance(next Branch) {
	t.slots[t.head] = next
	t.head = (t.head + 1) % TrackLen
}

// Branches returns the track in logical order.
func (t Track) Branches() []Branch {
	out := make([]Branch, TrackLen)
	for i := range out {
		out[i] = t.At(i)
	}
	return out
}

func (t Track) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Branches())
}
