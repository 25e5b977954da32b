package engine

import (
	"errors"
)

var ErrRoundEnded = errors.New("round already ended")
var ErrInvalidDirection = errors.New("invalid direction")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
	SideNone  Side = "none"
)

// ParseDirection accepts only the two lanes a player can move to.
func ParseDirection(s string) (Side, error) {
	switch Side(s) {
	case SideLeft, SideRight:
		return Side(s), nil
	default:
		return "", ErrInvalidDirection
	}
}

type EndReason string

const (
	ReasonNone      EndReason = ""
	ReasonHitBranch EndReason = "hit_branch"
	ReasonTimeout   EndReason = "timeout"
)

type Rules struct {
	MaxTime   int // seconds
	TimeBonus int // seconds granted per safe move
}

func DefaultRules() Rules {
	return Rules{MaxTime: 15, TimeBonus: 2}
}

type State struct {
	Position Side
	Score    int
	Level    int
	TimeLeft int
	Track    Track
	Active   bool
	Reason   EndReason
	Rules    Rules
}

type CommandType string

const (
	CmdMove   CommandType = "Move"
	CmdTick   CommandType = "Tick"
	CmdExpire CommandType = "Expire"
)

/*
	CmdMove   -> EvtMoved -> EvtBranchAdvanced
	          -> EvtMoved -> EvtBranchHit -> EvtRoundEnded
	CmdTick   -> EvtTimeTicked
	          -> EvtTimeExpired -> EvtRoundEnded (tick at zero)
	CmdExpire -> EvtTimeExpired -> EvtRoundEnded
*/

type Command struct {
	Type      CommandType
	Direction Side
}

type EventType string

const (
	EvtMoved          EventType = "Moved"
	EvtBranchAdvanced EventType = "BranchAdvanced"
	EvtBranchHit      EventType = "BranchHit"
	EvtTimeTicked     EventType = "TimeTicked"
	EvtTimeExpired    EventType = "TimeExpired"
	EvtRoundEnded     EventType = "RoundEnded"
)

type Event struct {
	Type   EventType
	Side   Side
	Score  int
	Reason EndReason
}

// NewRound builds the initial state of a round. The two seeded branches are
// chained so the adjacency rule already holds for the first look-ahead slots.
func NewRound(rules Rules, rng Rand) State {
	first := Generate(rng, 1, SideNone)
	second := Generate(rng, 1, first.Side)

	var track Track
	track.Reset([TrackLen]Branch{
		{Side: SideNone, Level: 1},
		{Side: SideNone, Level: 1},
		first,
		second,
		{Side: SideNone, Level: 1},
	})

	return State{
		Position: SideLeft,
		Score:    0,
		Level:    1,
		TimeLeft: rules.MaxTime,
		Track:    track,
		Active:   true,
		Rules:    rules,
	}
}

// Apply returns the events produced by cmd and the resulting state. The input
// state is never modified; on error the original state is returned as is.
func Apply(s State, cmd Command, rng Rand) ([]Event, State, error) {
	if !s.Active {
		return nil, s, ErrRoundEnded
	}

	newState := s

	switch cmd.Type {
	case CmdMove:
		if cmd.Direction != SideLeft && cmd.Direction != SideRight {
			return nil, s, ErrInvalidDirection
		}

		newState.Position = cmd.Direction
		events := []Event{{Type: EvtMoved, Side: cmd.Direction, Score: s.Score}}

		threat := s.Track.Threat()
		if threat.Side != SideNone && threat.Side == cmd.Direction {
			newState.Active = false
			newState.Reason = ReasonHitBranch
			events = append(events,
				Event{Type: EvtBranchHit, Side: threat.Side, Score: s.Score},
				Event{Type: EvtRoundEnded, Score: s.Score, Reason: ReasonHitBranch},
			)
			return events, newState, nil
		}

		newState.Score++
		newState.Level++
		newState.TimeLeft = min(s.Rules.MaxTime, s.TimeLeft+s.Rules.TimeBonus)

		next := Generate(rng, newState.Level, s.Track.Last().Side)
		newState.Track.Advance(next)

		events = append(events, Event{Type: EvtBranchAdvanced, Side: next.Side, Score: newState.Score})
		return events, newState, nil

	case CmdTick:
		if s.TimeLeft <= 0 {
			return expire(s), endState(s, ReasonTimeout), nil
		}
		newState.TimeLeft--
		return []Event{{Type: EvtTimeTicked, Score: s.Score}}, newState, nil

	case CmdExpire:
		return expire(s), endState(s, ReasonTimeout), nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func expire(s State) []Event {
	return []Event{
		{Type: EvtTimeExpired, Score: s.Score},
		{Type: EvtRoundEnded, Score: s.Score, Reason: ReasonTimeout},
	}
}

func endState(s State, reason EndReason) State {
	s.Active = false
	s.Reason = reason
	return s
}
