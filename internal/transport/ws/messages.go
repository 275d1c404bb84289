package ws

import "encoding/json"

// Client commands.
const (
	CommandJoinGame     = "joinGame"
	CommandStartGame    = "startGame"
	CommandNextQuestion = "nextQuestion"
	CommandSubmitAnswer = "submitAnswer"
)

// Ack statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Command is one client request. ID is an opaque client-chosen value
// echoed back on the matching ack.
type Command struct {
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// Ack is the direct reply to one command.
type Ack struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Envelope wraps every server-pushed room event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type JoinGameData struct {
	JoinCode  string `json:"joinCode"`
	Token     string `json:"token,omitempty"`
	GuestName string `json:"guestName,omitempty"`
}

type StartGameData struct {
	JoinCode string `json:"joinCode"`
	Token    string `json:"token"`
}

type NextQuestionData struct {
	JoinCode string `json:"joinCode"`
	Token    string `json:"token"`
}

type SubmitAnswerData struct {
	JoinCode          string `json:"joinCode"`
	QuestionID        int64  `json:"questionId"`
	SubmittedOptionID int64  `json:"submittedOptionId"`
	SubmittedTime     int64  `json:"submittedTime"` // unix milliseconds
}
