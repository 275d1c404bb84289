package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlive/internal/api"
	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/event"
	"github.com/victornm/quizlive/internal/game"
	"github.com/victornm/quizlive/internal/identity"
	"github.com/victornm/quizlive/internal/leaderboard"
)

type stubGateway struct {
	questions map[int64][]domain.Question
	nextID    int64
}

func (g *stubGateway) QuestionsForQuiz(_ context.Context, quizID int64) ([]domain.Question, error) {
	qs, ok := g.questions[quizID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz %d not found", quizID))
	}
	return qs, nil
}

func (g *stubGateway) CreateSessionRecord(context.Context, int64, int64, string, domain.SessionStatus) (int64, error) {
	g.nextID++
	return g.nextID, nil
}

func (g *stubGateway) SessionCodeInUse(context.Context, string) (bool, error) { return false, nil }

func (g *stubGateway) UpdateSessionStatus(context.Context, int64, domain.SessionStatus, *time.Time) error {
	return nil
}

func (g *stubGateway) LookupDisplayName(context.Context, int64) (string, error) {
	return "", errors.New(errors.CodeNotFound, errors.WithMessagef("not found"))
}

func (g *stubGateway) RecordAnswer(context.Context, domain.AnswerSubmission) error { return nil }

type env struct {
	engine   *gin.Engine
	reg      *game.Registry
	ls       *leaderboard.Service
	verifier *identity.Verifier
	eb       *event.Bus
}

func makeEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := &stubGateway{questions: map[int64][]domain.Question{
		1: {{QuestionID: 101}},
	}}

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})

	eb := event.NewBus()
	reg := game.NewRegistry(game.RegistryConfig{Gateway: gw})
	ls := leaderboard.NewService(leaderboard.Config{EventBus: eb, Redis: rc})
	verifier := identity.NewVerifier("test-secret")

	e := gin.New()
	api.New(api.Config{
		Registry:    reg,
		Leaderboard: ls,
		Verifier:    verifier,
	}).Register(e)

	return &env{engine: e, reg: reg, ls: ls, verifier: verifier, eb: eb}
}

func (e *env) token(t *testing.T, userID int64, role string) string {
	t.Helper()

	tok, err := e.verifier.Sign(userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestAPI_CreateGame(t *testing.T) {
	tests := map[string]struct {
		token  func(t *testing.T, e *env) string
		body   string
		status int
	}{
		"teacher creates a game": {
			token:  func(t *testing.T, e *env) string { return e.token(t, 10, domain.RoleTeacher) },
			body:   `{"quizId": 1}`,
			status: http.StatusCreated,
		},
		"admin creates a game": {
			token:  func(t *testing.T, e *env) string { return e.token(t, 11, domain.RoleAdmin) },
			body:   `{"quizId": 1}`,
			status: http.StatusCreated,
		},
		"player cannot host": {
			token:  func(t *testing.T, e *env) string { return e.token(t, 12, domain.RolePlayer) },
			body:   `{"quizId": 1}`,
			status: http.StatusForbidden,
		},
		"missing token": {
			token:  func(t *testing.T, e *env) string { return "" },
			body:   `{"quizId": 1}`,
			status: http.StatusUnauthorized,
		},
		"unknown quiz": {
			token:  func(t *testing.T, e *env) string { return e.token(t, 10, domain.RoleTeacher) },
			body:   `{"quizId": 404}`,
			status: http.StatusNotFound,
		},
		"missing quiz id": {
			token:  func(t *testing.T, e *env) string { return e.token(t, 10, domain.RoleTeacher) },
			body:   `{}`,
			status: http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			e := makeEnv(t)

			w := e.do(t, http.MethodPost, "/api/games", tt.token(t, e), tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			if tt.status == http.StatusCreated {
				var resp api.CreateGameResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Len(t, resp.GameCode, 6)
				assert.NotZero(t, resp.GameSessionID)

				_, ok := e.reg.Get(resp.GameCode)
				assert.True(t, ok)
			}
		})
	}
}

func TestAPI_GetGame(t *testing.T) {
	e := makeEnv(t)

	s, err := e.reg.CreateSession(context.Background(), 1, 10)
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/api/games/"+s.Code(), "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var view game.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, s.Code(), view.JoinCode)
	assert.Equal(t, domain.StatusWaiting, view.Status)

	w = e.do(t, http.MethodGet, "/api/games/ZZZZZZ", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_GetLeaderboard(t *testing.T) {
	e := makeEnv(t)

	err := e.ls.UpdateLeaderboard(context.Background(), domain.EventScoreUpdated{
		Score: domain.Score{SessionCode: "ABC123", Username: "u1", TotalScore: 750},
	})
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/api/games/ABC123/leaderboard", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var l domain.Leaderboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
	require.Len(t, l.Entries, 1)
	assert.Equal(t, 750, l.Entries[0].Score)

	w = e.do(t, http.MethodGet, "/api/games/NOPE99/leaderboard", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
