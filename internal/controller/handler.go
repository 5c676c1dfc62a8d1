package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tunesync/server/internal/service/room"
)

type joinRoomQuery struct {
	RoomCode string `json:"room_code" validate:"required,max=16,alphanum"`
	Username string `json:"username" validate:"required,max=16"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	c.serveRoom(w, r, c.roomService.NewRoomCode())
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	c.serveRoom(w, r, chi.URLParam(r, "room-code"))
}

func (c controller) serveRoom(w http.ResponseWriter, r *http.Request, roomCode string) {
	query := joinRoomQuery{
		RoomCode: roomCode,
		Username: r.URL.Query().Get("username"),
	}
	if validationErrors, ok := c.validate.Validate(query); !ok {
		c.logger.DebugContext(r.Context(), "invalid join request", "errors", validationErrors)
		c.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": validationErrors})
		return
	}

	session, err := c.roomService.GetOrCreate(r.Context(), roomCode)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to get or create room", "error", err)
		c.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to join room"})
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	memberId := uuid.NewString()
	subscriptionId := c.hub.Subscribe(roomCode, conn)
	defer c.hub.Unsubscribe(subscriptionId)

	// the hub's write loop owns the conn from Subscribe on; every
	// server-side message goes through it
	c.hub.Send(subscriptionId, &room.Output{
		Type: "JOINED_ROOM",
		Payload: map[string]any{
			"member_id":  memberId,
			"username":   query.Username,
			"room_state": session.State(),
		},
	})

	ctx := context.WithValue(r.Context(), roomCodeCtxKey, roomCode)
	ctx = context.WithValue(ctx, memberIdCtxKey, memberId)
	ctx = context.WithValue(ctx, subscriptionIdCtxKey, subscriptionId)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(r.Context(), "connection closed", "error", err)
		return
	}
}
