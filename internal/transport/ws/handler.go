package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/quizlive/internal/errors"
)

// dispatch routes one client command to the live core and acks the
// result on the same connection.
func (h *Hub) dispatch(c *connection, raw []byte) {
	ctx := context.Background()

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.ack(Ack{Status: StatusError, Message: "malformed command"})
		return
	}

	var (
		data any
		err  error
	)

	switch cmd.Command {
	case CommandJoinGame:
		data, err = h.handleJoinGame(ctx, c, cmd.Data)
	case CommandStartGame:
		data, err = h.handleStartGame(ctx, cmd.Data)
	case CommandNextQuestion:
		data, err = h.handleNextQuestion(ctx, cmd.Data)
	case CommandSubmitAnswer:
		data, err = h.handleSubmitAnswer(ctx, c, cmd.Data)
	default:
		err = errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown command %q", cmd.Command))
	}

	if err != nil {
		e := errors.Convert(err)
		if e.Code == errors.CodeInternal {
			slog.ErrorContext(ctx, "ws: command failed",
				"connection_id", c.id,
				"command", cmd.Command,
				"error", err,
			)
			c.ack(Ack{ID: cmd.ID, Status: StatusError, Message: "internal error"})
			return
		}

		c.ack(Ack{ID: cmd.ID, Status: StatusError, Message: e.Message})
		return
	}

	c.ack(Ack{ID: cmd.ID, Status: StatusSuccess, Data: data})
}

func (h *Hub) handleJoinGame(ctx context.Context, c *connection, raw json.RawMessage) (any, error) {
	var data JoinGameData
	if err := unmarshalData(raw, &data); err != nil {
		return nil, err
	}

	res, err := h.core.Join(ctx, data.JoinCode, data.Token, data.GuestName, c.id)
	if err != nil {
		return nil, err
	}

	// Seat the connection in the room only after the core accepted
	// it, so it never sees events for a game it is not in.
	h.assign(c, data.JoinCode)

	return res, nil
}

func (h *Hub) handleStartGame(ctx context.Context, raw json.RawMessage) (any, error) {
	var data StartGameData
	if err := unmarshalData(raw, &data); err != nil {
		return nil, err
	}

	res, err := h.core.Start(ctx, data.JoinCode, data.Token)
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (h *Hub) handleNextQuestion(ctx context.Context, raw json.RawMessage) (any, error) {
	var data NextQuestionData
	if err := unmarshalData(raw, &data); err != nil {
		return nil, err
	}

	res, err := h.core.Advance(ctx, data.JoinCode, data.Token)
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (h *Hub) handleSubmitAnswer(ctx context.Context, c *connection, raw json.RawMessage) (any, error) {
	var data SubmitAnswerData
	if err := unmarshalData(raw, &data); err != nil {
		return nil, err
	}

	submittedAt := time.UnixMilli(data.SubmittedTime)
	if data.SubmittedTime == 0 {
		submittedAt = time.Now()
	}

	res, err := h.core.SubmitAnswer(ctx, data.JoinCode, c.id, data.QuestionID, data.SubmittedOptionID, submittedAt)
	if err != nil {
		return nil, err
	}

	return res, nil
}

func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("missing command data"))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed command data"),
			errors.WithCause(fmt.Errorf("unmarshal: %w", err)))
	}

	return nil
}

// ack writes directly to the connection's send buffer; a full buffer
// means the client is not keeping up and the reply is dropped with
// the connection.
func (c *connection) ack(a Ack) {
	data, err := json.Marshal(a)
	if err != nil {
		slog.Error("ws: marshal ack failed", "connection_id", c.id, "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		c.conn.Close()
	}
}
