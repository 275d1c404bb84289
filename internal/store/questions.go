package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
)

// questionRow is one flat row of the questions/options join.
type questionRow struct {
	QuestionID      int64
	Text            string
	Type            string
	CorrectOptionID int64
	OptionID        *int64
	OptionLetter    *string
	OptionText      *string
}

// QuestionsForQuiz loads the quiz's questions with their options,
// questions in id order, options ordered by letter. Fails NotFound if
// the quiz row does not exist; a quiz without questions yields an
// empty slice.
func (g *Gateway) QuestionsForQuiz(ctx context.Context, quizID int64) ([]domain.Question, error) {
	const existsStmt = `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1);`

	var exists bool
	if err := g.db.QueryRow(ctx, existsStmt, quizID).Scan(&exists); err != nil {
		return nil, errors.Internal(fmt.Errorf("check quiz: %w", err))
	}
	if !exists {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz %d not found", quizID))
	}

	const stmt = `
SELECT
	q.id, q.text, q.type, q.correct_answer_option_id,
	ao.id, ao.option_letter, ao.option_text
FROM questions q
LEFT JOIN answer_options ao ON ao.question_id = q.id
WHERE q.quiz_id = $1
ORDER BY q.id, ao.option_letter;`

	rows, err := g.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("load questions: %w", err))
	}

	flat, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (questionRow, error) {
		var qr questionRow
		if err := r.Scan(&qr.QuestionID, &qr.Text, &qr.Type, &qr.CorrectOptionID,
			&qr.OptionID, &qr.OptionLetter, &qr.OptionText); err != nil {
			return questionRow{}, err
		}
		return qr, nil
	})
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("scan questions: %w", err))
	}

	return groupQuestionRows(flat), nil
}

// groupQuestionRows folds the flat joined rows into question
// snapshots: first pass groups by question id preserving first-seen
// order, second pass attaches the child options in row order.
func groupQuestionRows(rows []questionRow) []domain.Question {
	var (
		order = make([]int64, 0, len(rows))
		byID  = make(map[int64]*domain.Question, len(rows))
	)

	for _, r := range rows {
		if _, ok := byID[r.QuestionID]; !ok {
			order = append(order, r.QuestionID)
			byID[r.QuestionID] = &domain.Question{
				QuestionID:      r.QuestionID,
				Text:            r.Text,
				Type:            r.Type,
				CorrectOptionID: r.CorrectOptionID,
			}
		}
	}

	for _, r := range rows {
		if r.OptionID == nil {
			continue
		}
		q := byID[r.QuestionID]
		q.Options = append(q.Options, domain.Option{
			OptionID: *r.OptionID,
			Letter:   derefString(r.OptionLetter),
			Text:     derefString(r.OptionText),
		})
	}

	questions := make([]domain.Question, 0, len(order))
	for _, id := range order {
		questions = append(questions, *byID[id])
	}

	return questions
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
