// Package game holds the live core of the quiz platform: the
// in-memory session registry, the per-room state machine and the
// question timer. Everything mutable in here is scoped to one room
// and serialized by that room's lock; durable state goes through the
// persistence gateway.
package game

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizlive/internal/domain"
)

// Session is one active game room. All mutable fields are guarded by
// mu; operations on different sessions never contend.
type Session struct {
	mu sync.Mutex

	sessionID  int64
	joinCode   string
	quizID     int64
	hostUserID int64

	status        domain.SessionStatus
	players       []*domain.Player
	questions     []domain.Question
	currentIndex  int
	questionStart time.Time
	completedAt   time.Time

	timer *questionTimer
}

func newSession(sessionID, quizID, hostUserID int64, joinCode string, questions []domain.Question, clock clockwork.Clock) *Session {
	return &Session{
		sessionID:    sessionID,
		joinCode:     joinCode,
		quizID:       quizID,
		hostUserID:   hostUserID,
		status:       domain.StatusWaiting,
		questions:    questions,
		currentIndex: -1,
		timer:        newQuestionTimer(clock),
	}
}

func (s *Session) ID() int64 { return s.sessionID }

func (s *Session) Code() string { return s.joinCode }

// View returns a client-safe snapshot of the session, without answer
// keys.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionView{
		SessionID:            s.sessionID,
		JoinCode:             s.joinCode,
		QuizID:               s.quizID,
		Status:               s.status,
		CurrentQuestionIndex: s.currentIndex,
		QuestionCount:        len(s.questions),
		Players:              s.rosterLocked(),
	}
}

func (s *Session) playerByConnLocked(connectionID string) *domain.Player {
	for _, p := range s.players {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	return nil
}

func (s *Session) playerByUserLocked(userID int64) *domain.Player {
	if userID == 0 {
		return nil
	}
	for _, p := range s.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *Session) removePlayerLocked(connectionID string) *domain.Player {
	for i, p := range s.players {
		if p.ConnectionID == connectionID {
			s.players = append(s.players[:i], s.players[i+1:]...)
			return p
		}
	}
	return nil
}

func (s *Session) holdsConnection(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playerByConnLocked(connectionID) != nil
}

func (s *Session) rosterLocked() []PlayerView {
	roster := make([]PlayerView, 0, len(s.players))
	for _, p := range s.players {
		roster = append(roster, PlayerView{
			ConnectionID: p.ConnectionID,
			UserID:       p.UserID,
			Username:     p.Username,
			Role:         p.Role,
			Score:        p.Score,
		})
	}
	return roster
}

// rankingLocked builds the final scoreboard: players sorted by score
// descending, ties keeping join order. The sort must be stable for
// the tie rule to hold.
func (s *Session) rankingLocked() []domain.FinalScore {
	final := make([]domain.FinalScore, 0, len(s.players))
	for _, p := range s.players {
		final = append(final, domain.FinalScore{
			UserID:   p.UserID,
			Username: p.Username,
			Score:    p.Score,
		})
	}

	sort.SliceStable(final, func(i, j int) bool {
		return final[i].Score > final[j].Score
	})

	return final
}
