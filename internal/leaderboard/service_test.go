package leaderboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/event"
	"github.com/victornm/quizlive/internal/leaderboard"
)

func TestService_UpdateLeaderboard(t *testing.T) {
	s, _ := makeService(t)

	err := s.UpdateLeaderboard(context.Background(), domain.EventScoreUpdated{
		Score: domain.Score{
			SessionCode: "ABC123",
			Username:    "u1",
			TotalScore:  750,
			UpdateTime:  time.Now(),
		},
	})
	require.NoError(t, err)

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "ABC123",
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		SessionCode: "ABC123",
		Entries: []domain.LeaderboardEntry{
			{Username: "u1", Score: 750},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_UpdateLeaderboardOverwrites(t *testing.T) {
	s, _ := makeService(t)

	for _, total := range []int{300, 800} {
		err := s.UpdateLeaderboard(context.Background(), domain.EventScoreUpdated{
			Score: domain.Score{
				SessionCode: "ABC123",
				Username:    "u1",
				TotalScore:  total,
				UpdateTime:  time.Now(),
			},
		})
		require.NoError(t, err)
	}

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "ABC123",
	})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{
		{Username: "u1", Score: 800},
	}, resp.Entries)
}

func TestService_GetLeaderboardSortsDescending(t *testing.T) {
	s, _ := makeService(t)

	scores := map[string]int{"u1": 300, "u2": 900, "u3": 600}
	for username, total := range scores {
		err := s.UpdateLeaderboard(context.Background(), domain.EventScoreUpdated{
			Score: domain.Score{
				SessionCode: "ABC123",
				Username:    username,
				TotalScore:  total,
				UpdateTime:  time.Now(),
			},
		})
		require.NoError(t, err)
	}

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "ABC123",
	})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{
		{Username: "u2", Score: 900},
		{Username: "u3", Score: 600},
		{Username: "u1", Score: 300},
	}, resp.Entries)
}

func TestService_GetLeaderboardNotFound(t *testing.T) {
	s, _ := makeService(t)

	_, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "NOPE99",
	})
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestService_UpdatesThroughEventBus(t *testing.T) {
	eb := event.NewBus()
	s, _ := makeService(t, withEventBus(eb))

	eb.Publish(context.Background(), domain.EventScoreUpdated{
		Score: domain.Score{
			SessionCode: "ABC123",
			Username:    "u1",
			TotalScore:  500,
			UpdateTime:  time.Now(),
		},
	})
	eb.Stop()

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "ABC123",
	})
	require.NoError(t, err)
	require.Equal(t, 500, resp.Entries[0].Score)
}

func TestService_SessionEndedSchedulesExpiry(t *testing.T) {
	s, rs := makeService(t)

	err := s.UpdateLeaderboard(context.Background(), domain.EventScoreUpdated{
		Score: domain.Score{
			SessionCode: "ABC123",
			Username:    "u1",
			TotalScore:  500,
			UpdateTime:  time.Now(),
		},
	})
	require.NoError(t, err)

	err = s.ScheduleExpiry(context.Background(), domain.EventSessionEnded{
		SessionCode: "ABC123",
	})
	require.NoError(t, err)

	// Still readable right after the game ends.
	_, err = s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "ABC123",
	})
	require.NoError(t, err)

	// Gone once the retention window passes.
	rs.FastForward(25 * time.Hour)
	_, err = s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		SessionCode: "ABC123",
	})
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func makeService(t *testing.T, opts ...options) (*leaderboard.Service, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c), rs
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
