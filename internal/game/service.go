package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/countdown"
	"github.com/DoyleJ11/lumberjack-backend/internal/engine"
	"github.com/DoyleJ11/lumberjack-backend/internal/hub"
	"github.com/DoyleJ11/lumberjack-backend/internal/leaderboard"
	"github.com/DoyleJ11/lumberjack-backend/internal/notify"
	"github.com/DoyleJ11/lumberjack-backend/internal/session"
	"github.com/DoyleJ11/lumberjack-backend/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	ErrAuthRequired = errors.New("player identifier required")
	ErrNotFound     = errors.New("no round for player, start a new one")
	ErrInvalidInput = errors.New("invalid input")
)

// Store is what the round engine needs from persistence.
type Store interface {
	EnsurePlayer(ctx context.Context, p store.Profile) error
	RecordScore(ctx context.Context, playerID string, score int, roundContext string) error
	BestScore(ctx context.Context, playerID string) (int, error)
	BestScores(ctx context.Context, roundContext string) ([]leaderboard.Score, error)
	Profiles(ctx context.Context, playerIDs []string) (map[string]store.Profile, error)
}

type Notifier interface {
	RoundFinished(ctx context.Context, ev notify.RoundFinished) error
}

type Options struct {
	Rules           engine.Rules
	TickInterval    time.Duration
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	PersistTimeout  time.Duration
	LeaderboardSize int
	Clock           clockwork.Clock
	NewRand         func() engine.Rand
}

func DefaultOptions() Options {
	return Options{
		Rules:           engine.DefaultRules(),
		TickInterval:    time.Second,
		IdleTimeout:     10 * time.Minute,
		SweepInterval:   10 * time.Minute,
		PersistTimeout:  5 * time.Second,
		LeaderboardSize: leaderboard.DefaultTopN,
	}
}

type Status string

const (
	StatusContinue Status = "continue"
	StatusGameOver Status = "game_over"
)

type GameOver struct {
	FinalScore   int              `json:"final_score"`
	BestScore    int              `json:"top_score"`
	Reason       engine.EndReason `json:"reason,omitempty"`
	RoundContext string           `json:"eventId,omitempty"`
}

type MoveResult struct {
	Status   Status
	Snapshot session.Snapshot
	GameOver *GameOver
}

// Service is the round engine. Every session mutation goes through a
// session's inbox; persistence runs outside it.
type Service struct {
	ctx      context.Context
	hub      *hub.Hub
	store    Store
	notifier Notifier
	log      *zap.Logger
	opts     Options
	clock    clockwork.Clock
}

func NewService(ctx context.Context, h *hub.Hub, st Store, n Notifier, log *zap.Logger, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.NewRand == nil {
		opts.NewRand = engine.NewRand
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = leaderboard.DefaultTopN
	}
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{
		ctx:      ctx,
		hub:      h,
		store:    st,
		notifier: n,
		log:      log,
		opts:     opts,
		clock:    opts.Clock,
	}
}

// StartRound replaces any round the player has with a fresh one and starts
// its countdown.
func (s *Service) StartRound(ctx context.Context, id store.Profile, roundContext string) (session.Snapshot, error) {
	if id.PlayerID == "" {
		return session.Snapshot{}, ErrAuthRequired
	}
	playerID := id.PlayerID
	log := s.log.With(zap.String("player_id", playerID), zap.String("round_context", roundContext))

	if err := s.store.EnsurePlayer(ctx, id); err != nil {
		log.Warn("ensure player failed", zap.Error(err))
	}
	best, err := s.store.BestScore(ctx, playerID)
	if err != nil {
		log.Warn("best score lookup failed", zap.Error(err))
		best = 0
	}

	// the old countdown must be dead before the new round exists
	if prev, err := s.hub.Get(ctx, playerID); err != nil {
		return session.Snapshot{}, err
	} else if prev != nil {
		prev.StopTimer()
	}

	roundID := uuid.New()
	cd := countdown.New(s.clock, s.opts.TickInterval, func(tickCtx context.Context) bool {
		return s.onTick(tickCtx, playerID, roundID)
	})
	sess := session.New(s.ctx, session.Config{
		PlayerID:     playerID,
		RoundID:      roundID,
		RoundContext: roundContext,
		BestScore:    best,
		Rules:        s.opts.Rules,
		Rand:         s.opts.NewRand(),
		Clock:        s.clock,
		Timer:        cd,
	})

	// read the starting snapshot before the session is reachable: a racing
	// start for the same player may replace and close it right after Put
	view, err := sess.View(ctx)
	if err != nil {
		sess.Close()
		return session.Snapshot{}, err
	}

	replaced, err := s.hub.Put(ctx, sess)
	if err != nil {
		sess.Close()
		return session.Snapshot{}, fmt.Errorf("register session: %w", err)
	}
	if replaced != nil {
		replaced.Close()
		log.Info("replaced previous round", zap.Stringer("round_id", replaced.RoundID()))
	}
	cd.Start(s.ctx)

	log.Info("round started", zap.Stringer("round_id", roundID), zap.Int("top_score", best))
	return view.Snapshot, nil
}

// ApplyMove moves the player to direction and either advances the round or
// ends it on a branch hit. Moves on an ended round report the settled outcome.
func (s *Service) ApplyMove(ctx context.Context, playerID, direction string) (MoveResult, error) {
	dir, err := engine.ParseDirection(direction)
	if err != nil {
		return MoveResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	sess, err := s.lookup(ctx, playerID)
	if err != nil {
		return MoveResult{}, err
	}
	sess.Touch()

	res, err := sess.Move(ctx, dir)
	if err != nil {
		return MoveResult{}, s.sessionErr(err)
	}
	return s.resolve(ctx, sess, res, true)
}

// RequestTimeout is the client's view of expiry: it ends an active round
// and otherwise returns the outcome already settled.
func (s *Service) RequestTimeout(ctx context.Context, playerID string) (GameOver, error) {
	sess, err := s.lookup(ctx, playerID)
	if err != nil {
		return GameOver{}, err
	}
	sess.Touch()
	return s.expire(ctx, sess)
}

// ExpireRound ends the player's round on the server's behalf.
func (s *Service) ExpireRound(ctx context.Context, playerID string) (GameOver, error) {
	sess, err := s.lookup(ctx, playerID)
	if err != nil {
		return GameOver{}, err
	}
	return s.expire(ctx, sess)
}

func (s *Service) expire(ctx context.Context, sess *session.Session) (GameOver, error) {
	res, err := sess.Expire(ctx)
	if err != nil {
		return GameOver{}, s.sessionErr(err)
	}
	out, err := s.resolve(ctx, sess, res, true)
	if err != nil {
		return GameOver{}, err
	}
	return *out.GameOver, nil
}

// onTick runs on a session's countdown goroutine. Returning false stops it.
func (s *Service) onTick(ctx context.Context, playerID string, roundID uuid.UUID) bool {
	sess, err := s.hub.Get(ctx, playerID)
	if err != nil || sess == nil || sess.RoundID() != roundID {
		return false
	}

	res, err := sess.Tick(ctx, roundID)
	if err != nil || res.Err != nil {
		return false
	}
	if res.Transitioned {
		s.log.Info("round expired on server",
			zap.String("player_id", playerID),
			zap.Stringer("round_id", roundID))
		// this goroutine is the countdown; it exits by returning false
		s.finish(ctx, sess, res.Snapshot, false)
		return false
	}
	return true
}

func (s *Service) resolve(ctx context.Context, sess *session.Session, res session.Result, stopTimer bool) (MoveResult, error) {
	if res.Err != nil && !errors.Is(res.Err, engine.ErrRoundEnded) {
		return MoveResult{}, res.Err
	}
	if !res.Ended {
		return MoveResult{Status: StatusContinue, Snapshot: res.Snapshot}, nil
	}

	if res.Transitioned {
		s.finish(ctx, sess, res.Snapshot, stopTimer)
	}

	o, err := sess.Outcome(ctx)
	if err != nil {
		return MoveResult{}, s.sessionErr(err)
	}
	return MoveResult{
		Status:   StatusGameOver,
		Snapshot: res.Snapshot,
		GameOver: &GameOver{
			FinalScore:   o.FinalScore,
			BestScore:    o.BestScore,
			Reason:       o.Reason,
			RoundContext: o.RoundContext,
		},
	}, nil
}

// finish runs once per round, on whichever caller ended it. The outcome is
// settled only after the score write returns, so every observer sees the
// same best score. A failed write is logged and does not change the outcome.
func (s *Service) finish(ctx context.Context, sess *session.Session, snap session.Snapshot, stopTimer bool) {
	if stopTimer {
		sess.StopTimer()
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PersistTimeout)
	defer cancel()

	log := s.log.With(
		zap.String("player_id", sess.PlayerID()),
		zap.Stringer("round_id", sess.RoundID()),
		zap.String("round_context", sess.RoundContext()),
		zap.Int("score", snap.Score),
		zap.String("reason", string(snap.Reason)),
	)

	outcome := session.Outcome{
		FinalScore:   snap.Score,
		BestScore:    max(sess.BestScore(), snap.Score),
		Reason:       snap.Reason,
		RoundContext: sess.RoundContext(),
	}

	if snap.Score > 0 {
		if err := s.store.RecordScore(persistCtx, sess.PlayerID(), snap.Score, sess.RoundContext()); err != nil {
			log.Error("failed to record score", zap.Error(err))
		} else {
			log.Info("saved final score")
		}

		err := s.notifier.RoundFinished(persistCtx, notify.RoundFinished{
			PlayerID:     sess.PlayerID(),
			RoundID:      sess.RoundID().String(),
			RoundContext: sess.RoundContext(),
			Score:        snap.Score,
			BestScore:    outcome.BestScore,
			Reason:       string(snap.Reason),
			FinishedAt:   s.clock.Now(),
		})
		if err != nil {
			log.Warn("failed to publish round finished", zap.Error(err))
		}
	}

	sess.Settle(outcome)
	log.Info("round ended")
}

// State returns the current snapshot of the player's round.
func (s *Service) State(ctx context.Context, playerID string) (session.Snapshot, error) {
	sess, err := s.lookup(ctx, playerID)
	if err != nil {
		return session.Snapshot{}, err
	}
	view, err := sess.View(ctx)
	if err != nil {
		return session.Snapshot{}, s.sessionErr(err)
	}
	return view.Snapshot, nil
}

// Watch streams the player's snapshots to out until the returned stop func
// is called or the session goes away, at which point out is closed.
func (s *Service) Watch(ctx context.Context, playerID, clientID string, out chan session.Snapshot) (func(), error) {
	sess, err := s.lookup(ctx, playerID)
	if err != nil {
		return nil, err
	}
	select {
	case sess.Inbox() <- session.Watch{ClientID: clientID, Outbox: out}:
	case <-sess.Done():
		return nil, ErrNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	stop := func() {
		select {
		case sess.Inbox() <- session.Unwatch{ClientID: clientID}:
		case <-sess.Done():
		}
	}
	return stop, nil
}

// Sweep evicts sessions idle for longer than IdleTimeout.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.opts.IdleTimeout)
	idle, err := s.hub.CollectIdle(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, sess := range idle {
		sess.Close()
		s.log.Info("cleaned up inactive player",
			zap.String("player_id", sess.PlayerID()),
			zap.Stringer("round_id", sess.RoundID()),
			zap.Time("last_activity", sess.LastActivity()))
	}
	if len(idle) > 0 {
		if active, err := s.hub.Len(ctx); err == nil {
			s.log.Info("idle sweep done", zap.Int("evicted", len(idle)), zap.Int("active", active))
		}
	}
	return len(idle), nil
}

// RunSweeper sweeps every SweepInterval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	s.log.Info("idle sweeper started",
		zap.Duration("interval", s.opts.SweepInterval),
		zap.Duration("idle_timeout", s.opts.IdleTimeout))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if _, err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error("idle sweep failed", zap.Error(err))
			}
		}
	}
}

// Shutdown stops every session and its countdown.
func (s *Service) Shutdown(ctx context.Context) error {
	all, err := s.hub.Shutdown(ctx)
	if err != nil {
		return err
	}
	for _, sess := range all {
		sess.Close()
	}
	s.log.Info("round engine stopped", zap.Int("sessions", len(all)))
	return nil
}

func (s *Service) lookup(ctx context.Context, playerID string) (*session.Session, error) {
	if playerID == "" {
		return nil, ErrAuthRequired
	}
	sess, err := s.hub.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Service) sessionErr(err error) error {
	if errors.Is(err, session.ErrClosed) {
		return ErrNotFound
	}
	return err
}
