package domain

import "time"

// SessionStatus is the lifecycle state of a game session.
// Transitions are strictly forward: waiting -> in_progress -> completed.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// Roles carried in the caller's credential. Hosts are identified by
// user ID, not role; "admin" may act on any session.
const (
	RolePlayer  = "player"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Question is an immutable snapshot of a quiz question within a
// session. CorrectOptionID is never sent to clients.
type Question struct {
	QuestionID      int64
	Text            string
	Type            string
	Options         []Option
	CorrectOptionID int64
}

type Option struct {
	OptionID int64
	Letter   string
	Text     string
}

// Player is the in-memory seat of a connected participant, scoped to
// one session. UserID is 0 for guests.
type Player struct {
	ConnectionID string
	UserID       int64
	Username     string
	Role         string
	Score        int
}

// Guest reports whether the player joined without a durable identity.
func (p *Player) Guest() bool { return p.UserID == 0 }

// AnswerSubmission carries one scored answer into durable storage.
// The whole submission is recorded in a single transaction:
// find-or-create the participant, insert the answer if absent, update
// the participant's stored score.
type AnswerSubmission struct {
	SessionID         int64
	UserID            int64  // 0 for guests
	GuestName         string // set only for guests
	QuestionID        int64
	SubmittedOptionID *int64 // nil when no option was chosen
	IsCorrect         bool
	PointsEarned      int
	NewTotalScore     int
}

// FinalScore is one entry of the final ranking broadcast at game end.
type FinalScore struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Leaderboard is the live per-session score view.
// Entries are sorted by score in descending order.
type Leaderboard struct {
	SessionCode string
	Entries     []LeaderboardEntry
}

type LeaderboardEntry struct {
	Username string
	Score    int
}

// Score represents a user's running score within a session at a point
// in time.
type Score struct {
	SessionCode string
	Username    string
	TotalScore  int
	UpdateTime  time.Time
}
