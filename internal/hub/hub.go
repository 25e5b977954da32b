package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/session"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// PutSession registers a session, replying with the one it replaced (may be nil).
type PutSession struct {
	Session *session.Session
	Reply   chan *session.Session
}

type GetSession struct {
	PlayerID string
	Reply    chan *session.Session
}

// CollectIdle removes every session idle since before Cutoff and replies with them.
type CollectIdle struct {
	Cutoff time.Time
	Reply  chan []*session.Session
}

type CountSessions struct {
	Reply chan int
}

// ShutdownHub empties the hub and replies with every session it held.
type ShutdownHub struct {
	Reply chan []*session.Session
}

func (PutSession) isHubMsg()    {}
func (GetSession) isHubMsg()    {}
func (CollectIdle) isHubMsg()   {}
func (CountSessions) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub owns the player id -> session map. It only mutates the map; closing
// sessions is left to callers so no session work runs on the hub loop.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case PutSession:
				id := msg.Session.PlayerID()
				prev := h.sessions[id]
				h.sessions[id] = msg.Session
				msg.Reply <- prev

			case GetSession:
				msg.Reply <- h.sessions[msg.PlayerID] // May be nil

			case CollectIdle:
				var idle []*session.Session
				for id, s := range h.sessions {
					if s.LastActivity().Before(msg.Cutoff) {
						idle = append(idle, s)
						delete(h.sessions, id)
					}
				}
				msg.Reply <- idle

			case CountSessions:
				msg.Reply <- len(h.sessions)

			case ShutdownHub:
				all := make([]*session.Session, 0, len(h.sessions))
				for _, s := range h.sessions {
					all = append(all, s)
				}
				clear(h.sessions)
				h.log.Info("hub shutting down", zap.Int("sessions", len(all)))
				msg.Reply <- all
				h.cancel()
				return
			}
		}
	}
}

func call[T any](ctx context.Context, h *Hub, msg HubMsg, reply chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- msg:
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrHubClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) Put(ctx context.Context, s *session.Session) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	return call(ctx, h, PutSession{Session: s, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, playerID string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	return call(ctx, h, GetSession{PlayerID: playerID, Reply: reply}, reply)
}

func (h *Hub) CollectIdle(ctx context.Context, cutoff time.Time) ([]*session.Session, error) {
	reply := make(chan []*session.Session, 1)
	return call(ctx, h, CollectIdle{Cutoff: cutoff, Reply: reply}, reply)
}

func (h *Hub) Len(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	return call(ctx, h, CountSessions{Reply: reply}, reply)
}

func (h *Hub) Shutdown(ctx context.Context) ([]*session.Session, error) {
	reply := make(chan []*session.Session, 1)
	return call(ctx, h, ShutdownHub{Reply: reply}, reply)
}
