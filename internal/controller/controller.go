package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tunesync/server/internal/hub"
	"github.com/tunesync/server/internal/service/room"
	"github.com/tunesync/server/pkg/validator"
	"github.com/tunesync/server/pkg/wsrouter"
)

var ErrValidationError = errors.New("validation error")

type iRoomService interface {
	GetOrCreate(ctx context.Context, roomCode string) (*room.Session, error)
	Get(roomCode string) (*room.Session, error)
	NewRoomCode() string
}

type iHub interface {
	Subscribe(roomCode string, conn hub.Conn) string
	Unsubscribe(subscriptionID string)
	Touch(subscriptionID string)
	Send(subscriptionID string, message any)
}

type controller struct {
	roomService iRoomService
	hub         iHub
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	logger      *slog.Logger
	wsmux       *wsrouter.WSRouter
}

func NewController(roomService iRoomService, hub iHub, logger *slog.Logger) *controller {
	c := &controller{
		roomService: roomService,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		logger:   logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
