package domain

const (
	EventNameSessionCreated = "session.created"
	EventNameScoreUpdated   = "score.updated"
	EventNameSessionEnded   = "session.ended"
)

type EventSessionCreated struct {
	SessionCode string
	SessionID   int64
	QuizID      int64
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

type EventScoreUpdated struct {
	Score Score
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

type EventSessionEnded struct {
	SessionCode string
	FinalScores []FinalScore
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }
