package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/tunesync/server/internal/service/room"
)

type EmptyStruct struct{}

func (es *EmptyStruct) UnmarshalJSON([]byte) error {
	return nil
}

func (c controller) handleAlive(ctx context.Context, conn *websocket.Conn, input EmptyStruct) error {
	c.hub.Touch(c.getSubscriptionIdFromCtx(ctx))
	return nil
}

func (c controller) handleGetState(ctx context.Context, conn *websocket.Conn, input EmptyStruct) error {
	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	c.hub.Send(c.getSubscriptionIdFromCtx(ctx), &room.Output{
		Type: "ROOM_STATE",
		Payload: map[string]any{
			"room_state": session.State(),
		},
	})

	return nil
}

type AddTrackInput struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Provider string `json:"provider"`
}

func (c controller) handleAddTrack(ctx context.Context, conn *websocket.Conn, input AddTrackInput) error {
	if input.Title == "" || input.Artist == "" {
		return fmt.Errorf("title and artist are required: %w", ErrValidationError)
	}

	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if _, err := session.AddTrack(ctx, &room.AddTrackParams{
		Title:     input.Title,
		Artist:    input.Artist,
		Provider:  input.Provider,
		AddedByID: c.getMemberIdFromCtx(ctx),
	}); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	return nil
}

type VoteInput struct {
	EntryId int `json:"entry_id"`
	Delta   int `json:"delta"`
}

func (c controller) handleVote(ctx context.Context, conn *websocket.Conn, input VoteInput) error {
	if input.Delta == 0 {
		return fmt.Errorf("delta must be non-zero: %w", ErrValidationError)
	}

	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if _, err := session.Vote(ctx, &room.VoteParams{
		EntryID: input.EntryId,
		Delta:   input.Delta,
	}); err != nil {
		return fmt.Errorf("failed to vote: %w", err)
	}

	return nil
}

type RemoveTrackInput struct {
	EntryId int `json:"entry_id"`
}

func (c controller) handleRemoveTrack(ctx context.Context, conn *websocket.Conn, input RemoveTrackInput) error {
	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if err := session.RemoveTrack(ctx, input.EntryId); err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}

	return nil
}

func (c controller) handlePlay(ctx context.Context, conn *websocket.Conn, input EmptyStruct) error {
	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if _, err := session.Play(ctx); err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}

	return nil
}

func (c controller) handlePause(ctx context.Context, conn *websocket.Conn, input EmptyStruct) error {
	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if _, err := session.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}

	return nil
}

func (c controller) handleSkip(ctx context.Context, conn *websocket.Conn, input EmptyStruct) error {
	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if _, err := session.Skip(ctx); err != nil {
		return fmt.Errorf("failed to skip: %w", err)
	}

	return nil
}

type SeekInput struct {
	PositionMs int64 `json:"position_ms"`
}

func (c controller) handleSeek(ctx context.Context, conn *websocket.Conn, input SeekInput) error {
	session, err := c.roomService.Get(c.getRoomCodeFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	if _, err := session.Seek(ctx, input.PositionMs); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	return nil
}
