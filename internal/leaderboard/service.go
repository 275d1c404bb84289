// Package leaderboard mirrors each session's running scores into a
// redis sorted set, fed by score events from the live core. The
// mirror survives process restarts and serves read traffic without
// touching the game rooms.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/event"
)

// retentionAfterEnd is how long a finished game's leaderboard stays
// readable before redis expires it.
const retentionAfterEnd = 24 * time.Hour

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventScoreUpdated))
	})

	s.eb.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		return s.ScheduleExpiry(ctx, e.(domain.EventSessionEnded))
	})

	return s
}

type GetLeaderboardRequest struct {
	SessionCode string
}

// GetLeaderboard returns the leaderboard for a session, all players
// sorted by score descending.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(req.SessionCode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: session=%s", req.SessionCode))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			Username: z.Member.(string),
			Score:    int(z.Score),
		})
	}

	return &domain.Leaderboard{
		SessionCode: req.SessionCode,
		Entries:     entries,
	}, nil
}

// UpdateLeaderboard overwrites the player's score in the session's
// sorted set.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	sc := e.Score

	// TODO: retry on error
	if err := s.redis.ZAdd(ctx, s.leaderboardKey(sc.SessionCode), redis.Z{
		Score:  float64(sc.TotalScore),
		Member: sc.Username,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return nil
}

// ScheduleExpiry marks a finished game's leaderboard for expiry so
// redis does not accumulate dead sessions.
func (s *Service) ScheduleExpiry(ctx context.Context, e domain.EventSessionEnded) error {
	if err := s.redis.Expire(ctx, s.leaderboardKey(e.SessionCode), retentionAfterEnd).Err(); err != nil {
		return fmt.Errorf("schedule expiry: %w", err)
	}

	return nil
}

func (s *Service) leaderboardKey(sessionCode string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, sessionCode)
}
