package game

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/telemetry"
)

const (
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeLength   = 6

	defaultCompletedTTL = time.Hour
	janitorInterval     = time.Minute
)

type RegistryConfig struct {
	Gateway Gateway
	Clock   clockwork.Clock

	// CompletedTTL is how long a completed session stays readable in
	// the registry before the janitor sweeps it.
	CompletedTTL time.Duration

	// NewCodeFunc overrides join-code generation, for tests.
	NewCodeFunc func() (string, error)
}

// Registry is the process-wide table of active sessions keyed by join
// code. It is the sole owner of session lifecycle: entries are added
// by CreateSession and removed only by the janitor after completion.
type Registry struct {
	gw           Gateway
	clock        clockwork.Clock
	completedTTL time.Duration
	newCode      func() (string, error)

	mu       sync.RWMutex
	sessions map[string]*Session
	reserved map[string]bool
}

func NewRegistry(c RegistryConfig) *Registry {
	r := &Registry{
		gw:           c.Gateway,
		clock:        c.Clock,
		completedTTL: c.CompletedTTL,
		newCode:      c.NewCodeFunc,
		sessions:     make(map[string]*Session),
		reserved:     make(map[string]bool),
	}

	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.completedTTL <= 0 {
		r.completedTTL = defaultCompletedTTL
	}
	if r.newCode == nil {
		r.newCode = generateJoinCode
	}

	return r
}

// CreateSession loads the quiz's question snapshots, generates a join
// code that is unique among active sessions and in durable storage,
// persists the session row with status waiting, and registers the
// session. Fails NotFound when the quiz does not exist; a quiz with
// zero questions is created fine and rejected at start instead.
func (r *Registry) CreateSession(ctx context.Context, quizID, hostID int64) (*Session, error) {
	questions, err := r.gw.QuestionsForQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	code, err := r.claimCode(ctx)
	if err != nil {
		return nil, err
	}

	sessionID, err := r.gw.CreateSessionRecord(ctx, quizID, hostID, code, domain.StatusWaiting)
	if err != nil {
		r.releaseCode(code)
		return nil, err
	}

	s := newSession(sessionID, quizID, hostID, code, questions, r.clock)

	r.mu.Lock()
	delete(r.reserved, code)
	r.sessions[code] = s
	r.mu.Unlock()

	telemetry.SessionsCreated.Inc()
	telemetry.ActiveSessions.Inc()

	slog.InfoContext(ctx, "registry: session created",
		"join_code", code,
		"session_id", sessionID,
		"quiz_id", quizID,
		"questions", len(questions),
	)

	return s, nil
}

// Get is a pure lookup; it never fails.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	return s, ok
}

// sessionForConnection finds the session currently seating the given
// connection. At most one session holds a connection at a time.
func (r *Registry) sessionForConnection(connectionID string) *Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if s.holdsConnection(connectionID) {
			return s
		}
	}
	return nil
}

// claimCode generates codes until one is free both in memory and in
// durable storage, reserving it so a concurrent CreateSession cannot
// race to the same code. Each attempt is independent; a failed
// attempt leaks nothing.
func (r *Registry) claimCode(ctx context.Context) (string, error) {
	for {
		code, err := r.newCode()
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		_, active := r.sessions[code]
		if active || r.reserved[code] {
			r.mu.Unlock()
			continue
		}
		r.reserved[code] = true
		r.mu.Unlock()

		inUse, err := r.gw.SessionCodeInUse(ctx, code)
		if err != nil {
			r.releaseCode(code)
			return "", err
		}
		if inUse {
			r.releaseCode(code)
			continue
		}

		return code, nil
	}
}

func (r *Registry) releaseCode(code string) {
	r.mu.Lock()
	delete(r.reserved, code)
	r.mu.Unlock()
}

// RunJanitor sweeps completed sessions older than the configured TTL
// until ctx is cancelled. Waiting and in-progress sessions are never
// evicted.
func (r *Registry) RunJanitor(ctx context.Context) {
	ticker := r.clock.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.sweep(ctx)
		}
	}
}

func (r *Registry) sweep(ctx context.Context) {
	cutoff := r.clock.Now().Add(-r.completedTTL)

	r.mu.Lock()
	for code, s := range r.sessions {
		s.mu.Lock()
		expired := s.status == domain.StatusCompleted && s.completedAt.Before(cutoff)
		s.mu.Unlock()

		if expired {
			delete(r.sessions, code)
			telemetry.ActiveSessions.Dec()
			slog.InfoContext(ctx, "registry: evicted completed session", "join_code", code)
		}
	}
	r.mu.Unlock()
}

func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}

	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}

	return string(buf), nil
}
