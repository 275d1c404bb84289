package game

import "github.com/victornm/quizlive/internal/domain"

// Room event names pushed to connected clients.
const (
	EventQuestion        = "question"
	EventGameStarted     = "gameStarted"
	EventPlayerJoined    = "playerJoined"
	EventPlayerLeft      = "playerLeft"
	EventAnswerSubmitted = "answerSubmitted"
	EventTimerEnded      = "timerEnded"
	EventGameEnded       = "gameEnded"
	EventGameError       = "gameError"
)

// QuestionPayload is the client-safe question broadcast. It never
// carries the correct option id.
type QuestionPayload struct {
	QuestionID   int64            `json:"questionId"`
	QuestionText string           `json:"questionText"`
	QuestionType string           `json:"questionType"`
	Options      []QuestionOption `json:"options"`
	StartTime    int64            `json:"startTime"` // unix milliseconds
}

type QuestionOption struct {
	OptionID int64  `json:"optionId"`
	Letter   string `json:"letter"`
	Text     string `json:"text"`
}

type GameStartedPayload struct {
	Status               domain.SessionStatus `json:"status"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	TotalPlayers         int                  `json:"totalPlayers"`
}

type PlayerView struct {
	ConnectionID string `json:"connectionId"`
	UserID       int64  `json:"userId,omitempty"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	Score        int    `json:"score"`
}

type PlayerJoinedPayload struct {
	ConnectionID string       `json:"connectionId"`
	Username     string       `json:"username"`
	Role         string       `json:"role"`
	Score        int          `json:"score"`
	PlayersCount int          `json:"playersCount"`
	Players      []PlayerView `json:"players"`
}

type PlayerLeftPayload struct {
	ConnectionID string       `json:"connectionId"`
	Username     string       `json:"username"`
	PlayersCount int          `json:"playersCount"`
	Players      []PlayerView `json:"players"`
}

type AnswerSubmittedPayload struct {
	ConnectionID string `json:"connectionId"`
	QuestionID   int64  `json:"questionId"`
	IsCorrect    bool   `json:"isCorrect"`
	Score        int    `json:"score"`
	PointsEarned int    `json:"pointsEarned"`
	Username     string `json:"username"`
}

type TimerEndedPayload struct {
	Message string `json:"message"`
}

type GameEndedPayload struct {
	Message     string               `json:"message"`
	FinalScores []domain.FinalScore  `json:"finalScores"`
	Status      domain.SessionStatus `json:"status"`
}

type GameErrorPayload struct {
	Message string `json:"message"`
}

// SessionView is the snapshot returned to a joining client.
type SessionView struct {
	SessionID            int64                `json:"sessionId"`
	JoinCode             string               `json:"joinCode"`
	QuizID               int64                `json:"quizId"`
	Status               domain.SessionStatus `json:"status"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	QuestionCount        int                  `json:"questionCount"`
	Players              []PlayerView         `json:"players"`
}

func questionPayload(q domain.Question, startTime int64) QuestionPayload {
	options := make([]QuestionOption, 0, len(q.Options))
	for _, o := range q.Options {
		options = append(options, QuestionOption{
			OptionID: o.OptionID,
			Letter:   o.Letter,
			Text:     o.Text,
		})
	}

	return QuestionPayload{
		QuestionID:   q.QuestionID,
		QuestionText: q.Text,
		QuestionType: q.Type,
		Options:      options,
		StartTime:    startTime,
	}
}
