// Package api is the HTTP surface: game session management and
// leaderboard reads. The realtime traffic goes over the websocket
// endpoint the server wires separately.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/game"
	"github.com/victornm/quizlive/internal/identity"
	"github.com/victornm/quizlive/internal/leaderboard"
)

type Config struct {
	Registry    *game.Registry
	Leaderboard *leaderboard.Service
	Verifier    *identity.Verifier
}

type API struct {
	reg      *game.Registry
	ls       *leaderboard.Service
	verifier *identity.Verifier
}

func New(c Config) *API {
	return &API{
		reg:      c.Registry,
		ls:       c.Leaderboard,
		verifier: c.Verifier,
	}
}

func (a *API) Register(e *gin.Engine) {
	e.POST("/api/games", a.CreateGame)
	e.GET("/api/games/:code", a.GetGame)
	e.GET("/api/games/:code/leaderboard", a.GetLeaderboard)
}

type CreateGameRequest struct {
	QuizID int64 `json:"quizId" binding:"required"`
}

type CreateGameResponse struct {
	Message       string `json:"message"`
	GameCode      string `json:"gameCode"`
	GameSessionID int64  `json:"gameSessionId"`
}

// CreateGame opens a new game session for a quiz. Only teachers and
// admins may host.
func (a *API) CreateGame(c *gin.Context) {
	id, err := a.authenticate(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if id.Role != domain.RoleTeacher && id.Role != domain.RoleAdmin {
		abortWithError(c, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only teachers may create games")))
		return
	}

	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("quizId is required"),
			errors.WithCause(err)))
		return
	}

	s, err := a.reg.CreateSession(c.Request.Context(), req.QuizID, id.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateGameResponse{
		Message:       "Game session created successfully",
		GameCode:      s.Code(),
		GameSessionID: s.ID(),
	})
}

// GetGame returns the live view of a session: status, progress and
// who is in the room.
func (a *API) GetGame(c *gin.Context) {
	s, ok := a.reg.Get(c.Param("code"))
	if !ok {
		abortWithError(c, errors.New(errors.CodeNotFound,
			errors.WithMessagef("game %s not found", c.Param("code"))))
		return
	}

	c.JSON(http.StatusOK, s.View())
}

func (a *API) GetLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		SessionCode: c.Param("code"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func (a *API) authenticate(c *gin.Context) (identity.Identity, error) {
	auth := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return identity.Identity{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("missing bearer token"))
	}

	return a.verifier.Verify(token)
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)

	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
		c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"message": "internal error"})
		return
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"message": e.Message})
}
