package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizlive/internal/api"
	"github.com/victornm/quizlive/internal/event"
	"github.com/victornm/quizlive/internal/game"
	"github.com/victornm/quizlive/internal/identity"
	"github.com/victornm/quizlive/internal/leaderboard"
	"github.com/victornm/quizlive/internal/store"
	"github.com/victornm/quizlive/internal/telemetry"
	"github.com/victornm/quizlive/internal/transport/ws"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Auth struct {
		JWTSecret string
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Game struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Session struct {
		// CompletedTTLMinutes controls how long finished games stay
		// joinable for leaderboard reads before eviction. Zero means
		// the built-in default.
		CompletedTTLMinutes int32
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		gateway     *store.Gateway
		registry    *game.Registry
		coordinator *game.Coordinator
		leaderboard *leaderboard.Service
		hub         *ws.Hub
		verifier    *identity.Verifier
	}

	http *http.Server

	janitorCancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Leaderboard.Addrs,
		Password: s.c.Redis.Leaderboard.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg := s.c.Postgres.Game
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	s.service.gateway = store.NewGateway(store.Config{
		DB: s.infra.postgres,
	})

	s.service.registry = game.NewRegistry(game.RegistryConfig{
		Gateway:      s.service.gateway,
		CompletedTTL: time.Duration(s.c.Session.CompletedTTLMinutes) * time.Minute,
	})

	s.service.verifier = identity.NewVerifier(s.c.Auth.JWTSecret)

	s.service.coordinator = game.NewCoordinator(game.Config{
		Registry: s.service.registry,
		Gateway:  s.service.gateway,
		EventBus: s.eb,
		Verifier: s.service.verifier,
	})

	s.service.hub = ws.NewHub(ws.HubConfig{
		Core: s.service.coordinator,
	})
	s.service.coordinator.SetBroadcaster(s.service.hub)

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Registry:    s.service.registry,
		Leaderboard: s.service.leaderboard,
		Verifier:    s.service.verifier,
	}).Register(e)

	e.GET("/ws", gin.WrapH(s.service.hub))

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.janitorCancel = cancel

	go s.service.registry.RunJanitor(ctx)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.janitorCancel != nil {
		s.janitorCancel()
	}

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	s.infra.postgres.Close()
	if err := s.infra.redis.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
