package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/lumberjack-backend/internal/leaderboard"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const uniqueViolation = "23505"

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to Postgres and migrates the users and scores tables.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&User{}, &Score{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsurePlayer creates the user row on first sight and leaves existing rows alone.
func (s *Store) EnsurePlayer(ctx context.Context, p Profile) error {
	u := User{
		TelegramID: p.PlayerID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		PhotoURL:   p.PhotoURL,
	}
	err := s.db.WithContext(ctx).
		Where(User{TelegramID: p.PlayerID}).
		Attrs(u).
		FirstOrCreate(&u).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// lost a create race with a concurrent start; the row exists
			return nil
		}
		return fmt.Errorf("ensure player %s: %w", p.PlayerID, err)
	}
	return nil
}

func (s *Store) RecordScore(ctx context.Context, playerID string, score int, roundContext string) error {
	row := Score{Score: score, UserTelegramID: playerID, EventID: eventID(roundContext)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record score for %s: %w", playerID, err)
	}
	s.log.Debug("score recorded",
		zap.String("player_id", playerID),
		zap.Int("score", score),
		zap.String("round_context", roundContext))
	return nil
}

// BestScore is the player's best over every round, any context.
func (s *Store) BestScore(ctx context.Context, playerID string) (int, error) {
	var best int
	err := s.db.WithContext(ctx).
		Model(&Score{}).
		Select("COALESCE(MAX(score), 0)").
		Where("user_telegram_id = ?", playerID).
		Scan(&best).Error
	if err != nil {
		return 0, fmt.Errorf("best score for %s: %w", playerID, err)
	}
	return best, nil
}

// BestScores aggregates the per-player best within one round context. An
// empty context selects free play.
func (s *Store) BestScores(ctx context.Context, roundContext string) ([]leaderboard.Score, error) {
	var rows []struct {
		UserTelegramID string
		BestScore      int
	}

	q := s.db.WithContext(ctx).
		Model(&Score{}).
		Select("user_telegram_id, MAX(score) AS best_score").
		Group("user_telegram_id").
		Order("best_score DESC")
	if roundContext == "" {
		q = q.Where("event_id IS NULL")
	} else {
		q = q.Where("event_id = ?", roundContext)
	}

	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("best scores: %w", err)
	}

	out := make([]leaderboard.Score, len(rows))
	for i, r := range rows {
		out[i] = leaderboard.Score{PlayerID: r.UserTelegramID, BestScore: r.BestScore}
	}
	return out, nil
}

func (s *Store) Profiles(ctx context.Context, playerIDs []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(playerIDs))
	if len(playerIDs) == 0 {
		return out, nil
	}

	var users []User
	if err := s.db.WithContext(ctx).Where("telegram_id IN ?", playerIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("profiles: %w", err)
	}
	for _, u := range users {
		out[u.TelegramID] = u.profile()
	}
	return out, nil
}
