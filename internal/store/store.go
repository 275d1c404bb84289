// Package store is the durable side of the game: quizzes and their
// questions are read from Postgres, session and answer records are
// written back. The live in-memory state belongs to internal/game;
// everything here survives a restart.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Gateway implements the persistence operations the game core needs.
type Gateway struct {
	db *pgxpool.Pool
}

func NewGateway(c Config) *Gateway {
	return &Gateway{db: c.DB}
}

// CreateSessionRecord persists a new game session row and returns its id.
func (g *Gateway) CreateSessionRecord(ctx context.Context, quizID, hostID int64, code string, status domain.SessionStatus) (int64, error) {
	const stmt = `
INSERT INTO game_sessions (quiz_id, host_user_id, session_code, status)
VALUES ($1, $2, $3, $4)
RETURNING id;`

	var id int64
	if err := g.db.QueryRow(ctx, stmt, quizID, hostID, code, status).Scan(&id); err != nil {
		return 0, errors.Internal(fmt.Errorf("insert session: %w", err))
	}

	return id, nil
}

// SessionCodeInUse reports whether any durable session row already
// carries the given join code.
func (g *Gateway) SessionCodeInUse(ctx context.Context, code string) (bool, error) {
	const stmt = `SELECT EXISTS (SELECT 1 FROM game_sessions WHERE session_code = $1);`

	var exists bool
	if err := g.db.QueryRow(ctx, stmt, code).Scan(&exists); err != nil {
		return false, errors.Internal(fmt.Errorf("check session code: %w", err))
	}

	return exists, nil
}

// UpdateSessionStatus advances the durable status of a session.
// completedAt is set only for terminal transitions.
func (g *Gateway) UpdateSessionStatus(ctx context.Context, sessionID int64, status domain.SessionStatus, completedAt *time.Time) error {
	const stmt = `UPDATE game_sessions SET status = $2, completed_at = $3 WHERE id = $1;`

	if _, err := g.db.Exec(ctx, stmt, sessionID, status, completedAt); err != nil {
		return errors.Internal(fmt.Errorf("update session status: %w", err))
	}

	return nil
}

// LookupDisplayName resolves an authenticated user's display name:
// their username, or the local part of their email when the username
// is empty.
func (g *Gateway) LookupDisplayName(ctx context.Context, userID int64) (string, error) {
	const stmt = `SELECT COALESCE(username, ''), email FROM users WHERE id = $1;`

	var username, email string
	err := g.db.QueryRow(ctx, stmt, userID).Scan(&username, &email)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", errors.New(errors.CodeNotFound, errors.WithMessagef("user %d not found", userID))
	}
	if err != nil {
		return "", errors.Internal(fmt.Errorf("lookup user: %w", err))
	}

	if username != "" {
		return username, nil
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at], nil
	}

	return email, nil
}
