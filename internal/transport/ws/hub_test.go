package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/game"
	"github.com/victornm/quizlive/internal/transport/ws"
)

type fakeCore struct {
	mu            sync.Mutex
	joinErr       error
	disconnected  []string
	submittedAt   time.Time
	submittedConn string
}

func (f *fakeCore) Join(_ context.Context, code, token, guestName, connectionID string) (*game.JoinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return &game.JoinResult{
		Session: game.SessionView{JoinCode: code, QuestionCount: 2},
		Player:  game.PlayerView{ConnectionID: connectionID, Username: guestName},
	}, nil
}

func (f *fakeCore) Start(_ context.Context, code, token string) (*game.AdvanceResult, error) {
	return &game.AdvanceResult{QuestionIndex: 0}, nil
}

func (f *fakeCore) Advance(_ context.Context, code, token string) (*game.AdvanceResult, error) {
	return &game.AdvanceResult{QuestionIndex: 1}, nil
}

func (f *fakeCore) SubmitAnswer(_ context.Context, code, connectionID string, questionID, optionID int64, submittedAt time.Time) (*game.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submittedAt = submittedAt
	f.submittedConn = connectionID
	return &game.SubmitResult{IsCorrect: true, PointsEarned: 750, TotalScore: 750}, nil
}

func (f *fakeCore) Disconnect(_ context.Context, connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnected = append(f.disconnected, connectionID)
}

func startHub(t *testing.T, core ws.Core) (*ws.Hub, string) {
	t.Helper()

	hub := ws.NewHub(ws.HubConfig{Core: core})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd ws.Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func readAck(t *testing.T, conn *websocket.Conn) ws.Ack {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack ws.Ack
	require.NoError(t, conn.ReadJSON(&ack))
	return ack
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestHub_JoinAndBroadcast(t *testing.T) {
	core := &fakeCore{}
	hub, url := startHub(t, core)

	conn := dial(t, url)
	send(t, conn, ws.Command{
		ID:      "req-1",
		Command: ws.CommandJoinGame,
		Data:    mustJSON(t, ws.JoinGameData{JoinCode: "ABC123", GuestName: "bob"}),
	})

	ack := readAck(t, conn)
	assert.Equal(t, "req-1", ack.ID)
	assert.Equal(t, ws.StatusSuccess, ack.Status)

	// A room event reaches the seated connection.
	hub.Broadcast("ABC123", "question", map[string]any{"questionId": 101})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env ws.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "question", env.Event)
}

func TestHub_BroadcastSkipsOtherRooms(t *testing.T) {
	core := &fakeCore{}
	hub, url := startHub(t, core)

	conn := dial(t, url)
	send(t, conn, ws.Command{
		Command: ws.CommandJoinGame,
		Data:    mustJSON(t, ws.JoinGameData{JoinCode: "ABC123", GuestName: "bob"}),
	})
	readAck(t, conn)

	hub.Broadcast("OTHER1", "question", map[string]any{"questionId": 101})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var env ws.Envelope
	err := conn.ReadJSON(&env)
	assert.Error(t, err, "should not receive another room's event")
}

func TestHub_ReassignEvictsPriorRoom(t *testing.T) {
	core := &fakeCore{}
	hub, url := startHub(t, core)

	conn := dial(t, url)
	send(t, conn, ws.Command{
		Command: ws.CommandJoinGame,
		Data:    mustJSON(t, ws.JoinGameData{JoinCode: "AAAAAA", GuestName: "bob"}),
	})
	readAck(t, conn)

	send(t, conn, ws.Command{
		Command: ws.CommandJoinGame,
		Data:    mustJSON(t, ws.JoinGameData{JoinCode: "BBBBBB", GuestName: "bob"}),
	})
	readAck(t, conn)

	// Only the latest room's events reach the connection.
	hub.Broadcast("AAAAAA", "question", map[string]any{"questionId": 101})
	hub.Broadcast("BBBBBB", "question", map[string]any{"questionId": 202})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env ws.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(202), data["questionId"])

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	assert.Error(t, conn.ReadJSON(&env), "should receive nothing further")
}

func TestHub_JoinFailureDoesNotSeat(t *testing.T) {
	core := &fakeCore{joinErr: errors.New(errors.CodeNotFound, errors.WithMessagef("game ABC123 not found"))}
	hub, url := startHub(t, core)

	conn := dial(t, url)
	send(t, conn, ws.Command{
		Command: ws.CommandJoinGame,
		Data:    mustJSON(t, ws.JoinGameData{JoinCode: "ABC123", GuestName: "bob"}),
	})

	ack := readAck(t, conn)
	assert.Equal(t, ws.StatusError, ack.Status)
	assert.Contains(t, ack.Message, "not found")

	hub.Broadcast("ABC123", "question", map[string]any{"questionId": 101})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var env ws.Envelope
	assert.Error(t, conn.ReadJSON(&env))
}

func TestHub_SubmitAnswerUsesClientTimestamp(t *testing.T) {
	core := &fakeCore{}
	_, url := startHub(t, core)

	conn := dial(t, url)
	send(t, conn, ws.Command{
		Command: ws.CommandJoinGame,
		Data:    mustJSON(t, ws.JoinGameData{JoinCode: "ABC123", GuestName: "bob"}),
	})
	readAck(t, conn)

	at := time.Now().Add(-3 * time.Second).UnixMilli()
	send(t, conn, ws.Command{
		Command: ws.CommandSubmitAnswer,
		Data: mustJSON(t, ws.SubmitAnswerData{
			JoinCode:          "ABC123",
			QuestionID:        101,
			SubmittedOptionID: 1001,
			SubmittedTime:     at,
		}),
	})

	ack := readAck(t, conn)
	require.Equal(t, ws.StatusSuccess, ack.Status)

	core.mu.Lock()
	defer core.mu.Unlock()
	assert.Equal(t, at, core.submittedAt.UnixMilli())
	assert.NotEmpty(t, core.submittedConn)
}

func TestHub_UnknownCommand(t *testing.T) {
	core := &fakeCore{}
	_, url := startHub(t, core)

	conn := dial(t, url)
	send(t, conn, ws.Command{ID: "req-9", Command: "fly"})

	ack := readAck(t, conn)
	assert.Equal(t, "req-9", ack.ID)
	assert.Equal(t, ws.StatusError, ack.Status)
}

func TestHub_DisconnectReleasesSeat(t *testing.T) {
	core := &fakeCore{}
	_, url := startHub(t, core)

	conn := dial(t, url)
	send(t, conn, ws.Command{
		Command: ws.CommandJoinGame,
		Data:    mustJSON(t, ws.JoinGameData{JoinCode: "ABC123", GuestName: "bob"}),
	})
	readAck(t, conn)

	conn.Close()

	require.Eventually(t, func() bool {
		core.mu.Lock()
		defer core.mu.Unlock()
		return len(core.disconnected) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_NeverSeatedConnectionSkipsDisconnect(t *testing.T) {
	core := &fakeCore{}
	_, url := startHub(t, core)

	conn := dial(t, url)
	conn.Close()

	time.Sleep(100 * time.Millisecond)
	core.mu.Lock()
	defer core.mu.Unlock()
	assert.Empty(t, core.disconnected)
}
