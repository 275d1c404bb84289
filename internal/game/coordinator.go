package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/event"
	"github.com/victornm/quizlive/internal/identity"
	"github.com/victornm/quizlive/internal/scoring"
	"github.com/victornm/quizlive/internal/telemetry"
)

// Gateway is what the live core needs from durable storage. The
// answer-recording calls run in one transaction per submission on the
// other side of this interface.
type Gateway interface {
	QuestionsForQuiz(ctx context.Context, quizID int64) ([]domain.Question, error)
	CreateSessionRecord(ctx context.Context, quizID, hostID int64, code string, status domain.SessionStatus) (int64, error)
	SessionCodeInUse(ctx context.Context, code string) (bool, error)
	UpdateSessionStatus(ctx context.Context, sessionID int64, status domain.SessionStatus, completedAt *time.Time) error
	LookupDisplayName(ctx context.Context, userID int64) (string, error)
	RecordAnswer(ctx context.Context, sub domain.AnswerSubmission) error
}

// Broadcaster pushes a named event to every client in a room.
type Broadcaster interface {
	Broadcast(joinCode, event string, payload any)
}

// CredentialVerifier resolves an opaque credential to a caller
// identity.
type CredentialVerifier interface {
	Verify(token string) (identity.Identity, error)
}

type Config struct {
	Registry    *Registry
	Gateway     Gateway
	Broadcaster Broadcaster
	EventBus    *event.Bus
	Verifier    CredentialVerifier
	Clock       clockwork.Clock
}

// Coordinator drives the per-room state machine: membership, question
// progression, answer intake and event broadcast. Every operation on
// a room runs under that room's lock; operations on different rooms
// proceed independently.
type Coordinator struct {
	reg      *Registry
	gw       Gateway
	bc       Broadcaster
	eb       *event.Bus
	verifier CredentialVerifier
	clock    clockwork.Clock
}

func NewCoordinator(c Config) *Coordinator {
	co := &Coordinator{
		reg:      c.Registry,
		gw:       c.Gateway,
		bc:       c.Broadcaster,
		eb:       c.EventBus,
		verifier: c.Verifier,
		clock:    c.Clock,
	}

	if co.clock == nil {
		co.clock = clockwork.NewRealClock()
	}

	return co
}

// SetBroadcaster wires the realtime fan-out. The transport depends on
// the coordinator for dispatch and the coordinator on the transport
// for broadcast; whichever is built second is wired here, once,
// before serving starts.
func (c *Coordinator) SetBroadcaster(bc Broadcaster) {
	c.bc = bc
}

type JoinResult struct {
	Session SessionView `json:"session"`
	Player  PlayerView  `json:"player"`
}

// Join seats a caller in a room. Authenticated callers are resolved
// through their credential; guests join with just a display name.
// A connection or an authenticated user can hold at most one seat per
// session.
func (c *Coordinator) Join(ctx context.Context, code, token, guestName, connectionID string) (*JoinResult, error) {
	s, ok := c.reg.Get(code)
	if !ok {
		return nil, errSessionNotFound(code)
	}

	// A connection holds at most one seat across all sessions;
	// Disconnect tears down exactly one.
	if other := c.reg.sessionForConnection(connectionID); other != nil {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already joined game %s", other.Code()))
	}

	player := &domain.Player{
		ConnectionID: connectionID,
		Username:     guestName,
		Role:         domain.RolePlayer,
	}

	switch {
	case token != "":
		id, err := c.verifier.Verify(token)
		if err != nil {
			return nil, err
		}
		player.UserID = id.UserID
		player.Role = id.Role
		player.Username, err = c.displayName(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
	case guestName != "":
		// Guest seat, no durable identity.
	default:
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("a credential or a guest name is required to join"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playerByConnLocked(connectionID) != nil || s.playerByUserLocked(player.UserID) != nil {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already joined game %s", code))
	}

	s.players = append(s.players, player)

	slog.InfoContext(ctx, "game: player joined",
		"join_code", code,
		"connection_id", connectionID,
		"username", player.Username,
		"players", len(s.players),
	)

	view := PlayerView{
		ConnectionID: player.ConnectionID,
		UserID:       player.UserID,
		Username:     player.Username,
		Role:         player.Role,
		Score:        player.Score,
	}

	c.bc.Broadcast(code, EventPlayerJoined, PlayerJoinedPayload{
		ConnectionID: view.ConnectionID,
		Username:     view.Username,
		Role:         view.Role,
		Score:        view.Score,
		PlayersCount: len(s.players),
		Players:      s.rosterLocked(),
	})

	return &JoinResult{
		Session: SessionView{
			SessionID:            s.sessionID,
			JoinCode:             s.joinCode,
			QuizID:               s.quizID,
			Status:               s.status,
			CurrentQuestionIndex: s.currentIndex,
			QuestionCount:        len(s.questions),
			Players:              s.rosterLocked(),
		},
		Player: view,
	}, nil
}

// AdvanceResult reports what a question transition did.
type AdvanceResult struct {
	QuestionIndex int                 `json:"questionIndex"`
	Completed     bool                `json:"completed"`
	FinalScores   []domain.FinalScore `json:"finalScores,omitempty"`
}

// Start transitions a waiting session to in_progress and pushes the
// first question. Only the host or an admin may start.
func (c *Coordinator) Start(ctx context.Context, code, token string) (*AdvanceResult, error) {
	s, ok := c.reg.Get(code)
	if !ok {
		return nil, errSessionNotFound(code)
	}

	if err := c.authorizeHost(s, token); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusWaiting {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game %s already started or finished", code))
	}
	if len(s.questions) == 0 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz has no questions"))
	}

	s.status = domain.StatusInProgress
	s.currentIndex = -1

	slog.InfoContext(ctx, "game: started", "join_code", code, "players", len(s.players))

	c.bc.Broadcast(code, EventGameStarted, GameStartedPayload{
		Status:               s.status,
		CurrentQuestionIndex: s.currentIndex,
		TotalPlayers:         len(s.players),
	})

	return c.advanceLocked(ctx, s), nil
}

// Advance moves a session to its next question on explicit host
// action, or finishes the game when questions are exhausted.
func (c *Coordinator) Advance(ctx context.Context, code, token string) (*AdvanceResult, error) {
	s, ok := c.reg.Get(code)
	if !ok {
		return nil, errSessionNotFound(code)
	}

	if err := c.authorizeHost(s, token); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusInProgress {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game %s is not in progress", code))
	}

	return c.advanceLocked(ctx, s), nil
}

// autoAdvance is the timer expiry path. It carries the question index
// the timer was armed on: if the session has already moved past it, a
// manual advance won the race and this call must do nothing.
func (c *Coordinator) autoAdvance(ctx context.Context, code string, armedIndex int) {
	s, ok := c.reg.Get(code)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusInProgress || s.currentIndex != armedIndex {
		slog.DebugContext(ctx, "game: stale timer expiry ignored",
			"join_code", code,
			"armed_index", armedIndex,
			"current_index", s.currentIndex,
		)
		return
	}

	res := c.advanceLocked(ctx, s)

	c.bc.Broadcast(code, EventTimerEnded, TimerEndedPayload{
		Message: "Time is up, moving on!",
	})

	slog.InfoContext(ctx, "game: automatic advance",
		"join_code", code,
		"question_index", res.QuestionIndex,
		"completed", res.Completed,
	)
}

// advanceLocked performs one question transition with the room lock
// held: cancel any running timer, move the index forward exactly once,
// then either push the next question and re-arm the timer, or finish
// the game.
func (c *Coordinator) advanceLocked(ctx context.Context, s *Session) *AdvanceResult {
	s.timer.Cancel()
	s.currentIndex++

	if s.currentIndex < len(s.questions) {
		q := s.questions[s.currentIndex]
		s.questionStart = c.clock.Now()

		c.bc.Broadcast(s.joinCode, EventQuestion, questionPayload(q, s.questionStart.UnixMilli()))

		armedIndex := s.currentIndex
		code := s.joinCode
		s.timer.Arm(QuestionTimeLimit, func() {
			c.autoAdvance(context.WithoutCancel(ctx), code, armedIndex)
		})

		return &AdvanceResult{QuestionIndex: s.currentIndex}
	}

	s.status = domain.StatusCompleted
	s.completedAt = c.clock.Now()
	final := s.rankingLocked()

	c.bc.Broadcast(s.joinCode, EventGameEnded, GameEndedPayload{
		Message:     "Game over!",
		FinalScores: final,
		Status:      s.status,
	})

	c.eb.Publish(ctx, domain.EventSessionEnded{
		SessionCode: s.joinCode,
		FinalScores: final,
	})

	// The ending is already broadcast; a lagging status write should
	// not take the realtime result away from the room.
	completedAt := s.completedAt
	if err := c.gw.UpdateSessionStatus(ctx, s.sessionID, s.status, &completedAt); err != nil {
		slog.ErrorContext(ctx, "game: persist completion failed",
			"join_code", s.joinCode,
			"session_id", s.sessionID,
			"error", err,
		)
		c.bc.Broadcast(s.joinCode, EventGameError, GameErrorPayload{
			Message: "Results may not have been saved.",
		})
	}

	slog.InfoContext(ctx, "game: completed", "join_code", s.joinCode)

	return &AdvanceResult{
		QuestionIndex: s.currentIndex,
		Completed:     true,
		FinalScores:   final,
	}
}

type SubmitResult struct {
	IsCorrect    bool `json:"isCorrect"`
	PointsEarned int  `json:"pointsEarned"`
	TotalScore   int  `json:"totalScore"`
}

// SubmitAnswer scores one player's answer against the active question
// and records it durably, exactly once. The in-memory score moves only
// after the transaction commits; on any storage failure the operation
// fails whole and the player's score is untouched.
func (c *Coordinator) SubmitAnswer(ctx context.Context, code, connectionID string, questionID, optionID int64, submittedAt time.Time) (*SubmitResult, error) {
	s, ok := c.reg.Get(code)
	if !ok {
		return nil, errSessionNotFound(code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.playerByConnLocked(connectionID)
	if player == nil {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("you are not in game %s", code))
	}

	if s.status != domain.StatusInProgress || s.currentIndex < 0 ||
		s.questions[s.currentIndex].QuestionID != questionID {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("question %d is not open for answers", questionID))
	}

	q := s.questions[s.currentIndex]
	isCorrect := q.CorrectOptionID == optionID
	points := scoring.Points(isCorrect, s.questionStart, submittedAt,
		QuestionTimeLimit, MaxQuestionPoints, MinAwardedPoints)

	newTotal := player.Score + points

	sub := domain.AnswerSubmission{
		SessionID:         s.sessionID,
		UserID:            player.UserID,
		QuestionID:        questionID,
		SubmittedOptionID: &optionID,
		IsCorrect:         isCorrect,
		PointsEarned:      points,
		NewTotalScore:     newTotal,
	}
	if player.Guest() {
		sub.GuestName = player.Username
	}

	if err := c.gw.RecordAnswer(ctx, sub); err != nil {
		if errors.Is(err, errors.CodeAlreadyExists) {
			return nil, err
		}
		return nil, errors.Internal(err)
	}

	player.Score = newTotal
	telemetry.AnswersScored.Inc()

	c.eb.Publish(ctx, domain.EventScoreUpdated{
		Score: domain.Score{
			SessionCode: code,
			Username:    player.Username,
			TotalScore:  newTotal,
			UpdateTime:  submittedAt,
		},
	})

	c.bc.Broadcast(code, EventAnswerSubmitted, AnswerSubmittedPayload{
		ConnectionID: connectionID,
		QuestionID:   questionID,
		IsCorrect:    isCorrect,
		Score:        newTotal,
		PointsEarned: points,
		Username:     player.Username,
	})

	return &SubmitResult{
		IsCorrect:    isCorrect,
		PointsEarned: points,
		TotalScore:   newTotal,
	}, nil
}

// Disconnect removes the player seated on the given connection from
// whichever session holds it. Historical answers and durable scores
// are untouched.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) {
	s := c.reg.sessionForConnection(connectionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.removePlayerLocked(connectionID)
	if player == nil {
		return
	}

	slog.InfoContext(ctx, "game: player left",
		"join_code", s.joinCode,
		"connection_id", connectionID,
		"username", player.Username,
		"players", len(s.players),
	)

	c.bc.Broadcast(s.joinCode, EventPlayerLeft, PlayerLeftPayload{
		ConnectionID: connectionID,
		Username:     player.Username,
		PlayersCount: len(s.players),
		Players:      s.rosterLocked(),
	})
}

// authorizeHost verifies the credential and checks the caller may
// control the session: they are its host, or an admin.
func (c *Coordinator) authorizeHost(s *Session, token string) error {
	if token == "" {
		return errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("a credential is required for this action"))
	}

	id, err := c.verifier.Verify(token)
	if err != nil {
		return err
	}

	if id.UserID != s.hostUserID && id.Role != domain.RoleAdmin {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only the host may control this game"))
	}

	return nil
}

// displayName resolves an authenticated user's name, falling back to
// a generated one when the user row is missing.
func (c *Coordinator) displayName(ctx context.Context, userID int64) (string, error) {
	name, err := c.gw.LookupDisplayName(ctx, userID)
	if err == nil {
		return name, nil
	}
	if errors.Is(err, errors.CodeNotFound) {
		return fmt.Sprintf("user-%d", userID), nil
	}

	return "", err
}

func errSessionNotFound(code string) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("game %s not found", code))
}
