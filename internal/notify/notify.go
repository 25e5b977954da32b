package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "lumberjack.round.finished"

// RoundFinished is published once per round that ends with a positive score,
// for reward and bot workers.
type RoundFinished struct {
	PlayerID     string    `json:"player_id"`
	RoundID      string    `json:"round_id"`
	RoundContext string    `json:"round_context,omitempty"`
	Score        int       `json:"score"`
	BestScore    int       `json:"best_score"`
	Reason       string    `json:"reason"`
	FinishedAt   time.Time `json:"finished_at"`
}

type Nop struct{}

func (Nop) RoundFinished(context.Context, RoundFinished) error { return nil }
func (Nop) Close() error                                       { return nil }

type NATS struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

func Connect(url, subject string, log *zap.Logger) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("lumberjack-backend"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, subject: subject, log: log}, nil
}

func (n *NATS) RoundFinished(ctx context.Context, ev RoundFinished) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	n.log.Debug("round finished published", zap.String("player_id", ev.PlayerID), zap.Int("score", ev.Score))
	return nil
}

// Close flushes pending messages before closing the connection.
func (n *NATS) Close() error {
	err := n.conn.Drain()
	if err != nil {
		n.conn.Close()
	}
	return err
}

func Encode(ev RoundFinished) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal round finished: %w", err)
	}
	return data, nil
}
