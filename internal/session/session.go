package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/engine"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var ErrClosed = errors.New("session closed")
var ErrStaleTick = errors.New("tick for a previous round")

type Msg interface{ isSessionMsg() }

type Move struct {
	Direction engine.Side
	Reply     chan Result
}

func (Move) isSessionMsg() {}

type Tick struct {
	RoundID uuid.UUID
	Reply   chan Result
}

func (Tick) isSessionMsg() {}

type Expire struct {
	Reply chan Result
}

func (Expire) isSessionMsg() {}

type Watch struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Watch) isSessionMsg() {}

type Unwatch struct{ ClientID string }

func (Unwatch) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Snapshot struct {
	Version   int              `json:"version"`
	RoundID   uuid.UUID        `json:"round_id"`
	Position  engine.Side      `json:"lumberjackPosition"`
	Branches  []engine.Branch  `json:"branches"`
	TimeLeft  int              `json:"time_left"`
	Score     int              `json:"score"`
	Level     int              `json:"level"`
	Active    bool             `json:"game_active"`
	Reason    engine.EndReason `json:"reason,omitempty"`
	BestScore int              `json:"top_score"`
}

type View struct {
	Version     int
	NumWatchers int
	Snapshot    Snapshot
}

// Result is the reply to Move, Tick and Expire. Transitioned is set only on
// the one message that ended the round.
type Result struct {
	Snapshot     Snapshot
	Events       []engine.Event
	Ended        bool
	Transitioned bool
	Err          error
}

// Outcome is the settled terminal state of a round.
type Outcome struct {
	FinalScore   int
	BestScore    int
	Reason       engine.EndReason
	RoundContext string
}

// Timer is the countdown attached to a session.
type Timer interface {
	Stop()
}

type Config struct {
	PlayerID     string
	RoundID      uuid.UUID
	RoundContext string
	BestScore    int
	Rules        engine.Rules
	Rand         engine.Rand
	Clock        clockwork.Clock
	Timer        Timer
}

// Session is one player's round. All state changes happen on its loop
// goroutine, one message at a time.
type Session struct {
	playerID     string
	roundID      uuid.UUID
	roundContext string
	bestScore    int
	rng          engine.Rand
	clock        clockwork.Clock
	timer        Timer

	inbox    chan Msg
	state    engine.State
	version  int
	watchers map[string]chan Snapshot

	lastActivity atomic.Int64

	settleOnce sync.Once
	settled    chan struct{}
	outcome    Outcome

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = engine.NewRand()
	}

	s := &Session{
		playerID:     cfg.PlayerID,
		roundID:      cfg.RoundID,
		roundContext: cfg.RoundContext,
		bestScore:    cfg.BestScore,
		rng:          cfg.Rand,
		clock:        cfg.Clock,
		timer:        cfg.Timer,
		inbox:        make(chan Msg, 64),
		state:        engine.NewRound(cfg.Rules, cfg.Rand),
		watchers:     make(map[string]chan Snapshot),
		settled:      make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	s.Touch()

	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Move:
				msg.Reply <- s.apply(engine.Command{Type: engine.CmdMove, Direction: msg.Direction})

			case Tick:
				if msg.RoundID != s.roundID {
					msg.Reply <- Result{Snapshot: s.snapshot(), Ended: !s.state.Active, Err: ErrStaleTick}
					break
				}
				msg.Reply <- s.apply(engine.Command{Type: engine.CmdTick})

			case Expire:
				msg.Reply <- s.apply(engine.Command{Type: engine.CmdExpire})

			case Watch:
				// Register watcher + send current snapshot immediately
				s.watchers[msg.ClientID] = msg.Outbox
				select {
				case msg.Outbox <- s.snapshot():
				default:
				}

			case Unwatch:
				delete(s.watchers, msg.ClientID)

			case GetState:
				msg.Reply <- View{
					Version:     s.version,
					NumWatchers: len(s.watchers),
					Snapshot:    s.snapshot(),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) apply(cmd engine.Command) Result {
	events, next, err := engine.Apply(s.state, cmd, s.rng)
	if err != nil {
		return Result{Snapshot: s.snapshot(), Ended: !s.state.Active, Err: err}
	}

	wasActive := s.state.Active
	s.state = next
	s.version++
	snap := s.snapshot()
	s.broadcast(snap)

	return Result{
		Snapshot:     snap,
		Events:       events,
		Ended:        !next.Active,
		Transitioned: wasActive && !next.Active,
	}
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		Version:   s.version,
		RoundID:   s.roundID,
		Position:  s.state.Position,
		Branches:  s.state.Track.Branches(),
		TimeLeft:  s.state.TimeLeft,
		Score:     s.state.Score,
		Level:     s.state.Level,
		Active:    s.state.Active,
		Reason:    s.state.Reason,
		BestScore: s.bestScore,
	}
}

func (s *Session) shutdown() {
	// Nobody will settle an ended round once the loop is gone.
	if !s.state.Active {
		s.Settle(Outcome{
			FinalScore:   s.state.Score,
			BestScore:    max(s.bestScore, s.state.Score),
			Reason:       s.state.Reason,
			RoundContext: s.roundContext,
		})
	}
	for id, ch := range s.watchers {
		close(ch) // Tell watcher no more snapshots
		delete(s.watchers, id)
	}
	s.cancel()
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.watchers {
		select {
		case ch <- snap:
			//ok
		default:
			// Watcher is slow/full - drop them.
			close(ch)
			delete(s.watchers, id)
		}
	}
}

// Expose the inbox so tests or the WS layer can send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) PlayerID() string     { return s.playerID }
func (s *Session) RoundID() uuid.UUID   { return s.roundID }
func (s *Session) RoundContext() string { return s.roundContext }
func (s *Session) BestScore() int       { return s.bestScore }

// Touch records client activity for idle eviction.
func (s *Session) Touch() {
	s.lastActivity.Store(s.clock.Now().UnixNano())
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) Move(ctx context.Context, dir engine.Side) (Result, error) {
	return s.ask(ctx, func(reply chan Result) Msg { return Move{Direction: dir, Reply: reply} })
}

func (s *Session) Tick(ctx context.Context, roundID uuid.UUID) (Result, error) {
	return s.ask(ctx, func(reply chan Result) Msg { return Tick{RoundID: roundID, Reply: reply} })
}

func (s *Session) Expire(ctx context.Context) (Result, error) {
	return s.ask(ctx, func(reply chan Result) Msg { return Expire{Reply: reply} })
}

func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case s.inbox <- GetState{Reply: reply}:
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (s *Session) ask(ctx context.Context, build func(chan Result) Msg) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case s.inbox <- build(reply):
	case <-s.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r, nil
	case <-s.done:
		select {
		case r := <-reply:
			return r, nil
		default:
			return Result{}, ErrClosed
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Settle publishes the terminal outcome. Only the first call has effect.
func (s *Session) Settle(o Outcome) {
	s.settleOnce.Do(func() {
		s.outcome = o
		close(s.settled)
	})
}

// Outcome blocks until the round's outcome has been settled.
func (s *Session) Outcome(ctx context.Context) (Outcome, error) {
	select {
	case <-s.settled:
		return s.outcome, nil
	case <-s.done:
		select {
		case <-s.settled:
			return s.outcome, nil
		default:
			return Outcome{}, ErrClosed
		}
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Close stops the countdown first, then the loop. Safe to call more than once.
func (s *Session) Close() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
	<-s.done
}

// StopTimer stops only the countdown, leaving the session readable.
func (s *Session) StopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Session) Done() <-chan struct{} { return s.done }
