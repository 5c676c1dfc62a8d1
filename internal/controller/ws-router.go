package controller

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"

	"github.com/tunesync/server/internal/service/room"
	"github.com/tunesync/server/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()

	mux.Use(c.messageIdWSMw, c.loggingWSMw)
	mux.OnError(c.errorHandler)

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)
	wsrouter.Handle(mux, "GET_STATE", c.handleGetState)
	wsrouter.Handle(mux, "ADD_TRACK", c.handleAddTrack)
	wsrouter.Handle(mux, "VOTE", c.handleVote)
	wsrouter.Handle(mux, "REMOVE_TRACK", c.handleRemoveTrack)
	wsrouter.Handle(mux, "PLAY", c.handlePlay)
	wsrouter.Handle(mux, "PAUSE", c.handlePause)
	wsrouter.Handle(mux, "SKIP", c.handleSkip)
	wsrouter.Handle(mux, "SEEK", c.handleSeek)

	return mux
}

func (c controller) errorHandler(ctx context.Context, conn *websocket.Conn, err error) {
	c.logger.InfoContext(ctx, "error handling message", "error", err)

	message := "internal error"
	switch {
	case errors.Is(err, ErrValidationError):
		message = "validation error"
	case errors.Is(err, room.ErrQueueFull):
		message = "queue is full"
	case errors.Is(err, room.ErrDuplicateTrack):
		message = "track is already queued"
	case errors.Is(err, room.ErrEntryNotFound):
		message = "track not found in queue"
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrRoomInactive):
		message = "room is closed"
	}

	c.hub.Send(c.getSubscriptionIdFromCtx(ctx), &room.Output{
		Type: "ERROR",
		Payload: map[string]any{
			"message": message,
		},
	})
}
