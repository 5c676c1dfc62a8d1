package controller

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/tunesync/server/pkg/ctxlogger"
	"github.com/tunesync/server/pkg/wsrouter"
)

func (c controller) messageIdWSMw(next wsrouter.HandlerFunc[json.RawMessage]) wsrouter.HandlerFunc[json.RawMessage] {
	return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
		ctx = ctxlogger.AppendCtx(ctx, slog.String("message_id", c.generateTimeBasedId()))
		return next(ctx, conn, payload)
	}
}

func (c controller) loggingWSMw(next wsrouter.HandlerFunc[json.RawMessage]) wsrouter.HandlerFunc[json.RawMessage] {
	return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
		c.logger.DebugContext(ctx, "message received",
			"type", wsrouter.GetMessageTypeFromCtx(ctx),
			"room_code", c.getRoomCodeFromCtx(ctx),
		)
		return next(ctx, conn, payload)
	}
}
