package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
)

const codeUniqueViolation = "23505"

// RecordAnswer durably records one scored answer in a single
// transaction: find-or-create the participant row, insert the answer
// if absent, update the participant's stored score. The unique index
// on (participant_id, question_id) is the authoritative duplicate
// guard; a violation maps to AlreadyExists and rolls everything back.
func (g *Gateway) RecordAnswer(ctx context.Context, sub domain.AnswerSubmission) (err error) {
	tx, err := g.db.Begin(ctx)
	if err != nil {
		return errors.Internal(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	participantID, err := g.findOrCreateParticipant(ctx, tx, sub)
	if err != nil {
		return err
	}

	if err = g.recordAnswerIfAbsent(ctx, tx, participantID, sub); err != nil {
		return err
	}

	if err = g.updateParticipantScore(ctx, tx, participantID, sub.NewTotalScore); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.Internal(fmt.Errorf("commit answer: %w", err))
	}

	return nil
}

// findOrCreateParticipant resolves the durable participant for this
// session keyed by user id, or by guest name for guests. Created
// lazily on the first scored answer.
func (g *Gateway) findOrCreateParticipant(ctx context.Context, tx pgx.Tx, sub domain.AnswerSubmission) (int64, error) {
	var (
		findStmt string
		key      any
	)
	if sub.UserID != 0 {
		findStmt = `SELECT id FROM session_participants WHERE session_id = $1 AND user_id = $2;`
		key = sub.UserID
	} else {
		findStmt = `SELECT id FROM session_participants WHERE session_id = $1 AND guest_identifier = $2;`
		key = sub.GuestName
	}

	var id int64
	err := tx.QueryRow(ctx, findStmt, sub.SessionID, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Internal(fmt.Errorf("find participant: %w", err))
	}

	const insStmt = `
INSERT INTO session_participants (session_id, user_id, guest_identifier, score)
VALUES ($1, $2, $3, $4)
RETURNING id;`

	var (
		userID    *int64
		guestName *string
	)
	if sub.UserID != 0 {
		userID = &sub.UserID
	} else {
		guestName = &sub.GuestName
	}

	if err := tx.QueryRow(ctx, insStmt, sub.SessionID, userID, guestName, 0).Scan(&id); err != nil {
		return 0, errors.Internal(fmt.Errorf("insert participant: %w", err))
	}

	return id, nil
}

func (g *Gateway) recordAnswerIfAbsent(ctx context.Context, tx pgx.Tx, participantID int64, sub domain.AnswerSubmission) error {
	const stmt = `
INSERT INTO player_answers (participant_id, question_id, submitted_option_id, is_correct, points_earned)
VALUES ($1, $2, $3, $4, $5);`

	_, err := tx.Exec(ctx, stmt, participantID, sub.QuestionID, sub.SubmittedOptionID, sub.IsCorrect, sub.PointsEarned)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer already submitted for question %d", sub.QuestionID),
			errors.WithCause(err))
	}
	if err != nil {
		return errors.Internal(fmt.Errorf("insert answer: %w", err))
	}

	return nil
}

func (g *Gateway) updateParticipantScore(ctx context.Context, tx pgx.Tx, participantID int64, score int) error {
	const stmt = `UPDATE session_participants SET score = $2 WHERE id = $1;`

	if _, err := tx.Exec(ctx, stmt, participantID, score); err != nil {
		return errors.Internal(fmt.Errorf("update participant score: %w", err))
	}

	return nil
}
