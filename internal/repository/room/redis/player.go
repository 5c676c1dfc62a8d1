package redis

import (
	"context"
	"fmt"

	"github.com/tunesync/server/internal/repository/room"
)

func (r Repo) getPlayerKey(roomCode string) string {
	return "room:" + roomCode + ":player"
}

func (r Repo) SavePlayer(ctx context.Context, params *room.SavePlayerParams) error {
	playerKey := r.getPlayerKey(params.RoomCode)
	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, playerKey, params.Player)
	pipe.Expire(ctx, playerKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}

	return nil
}

func (r Repo) LoadPlayer(ctx context.Context, roomCode string) (room.Player, error) {
	playerKey := r.getPlayerKey(roomCode)
	res, err := r.rc.Exists(ctx, playerKey).Result()
	if err != nil {
		return room.Player{}, fmt.Errorf("failed to check if player exists: %w", err)
	}

	if res == 0 {
		return room.Player{}, room.ErrPlayerNotFound
	}

	var player room.Player
	if err := r.rc.HGetAll(ctx, playerKey).Scan(&player); err != nil {
		return room.Player{}, fmt.Errorf("failed to get player: %w", err)
	}

	r.rc.Expire(ctx, playerKey, r.expireDuration)

	return player, nil
}

func (r Repo) RemoveRoom(ctx context.Context, roomCode string) error {
	queueKey := r.getQueueKey(roomCode)
	trackIDs, err := r.rc.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get track ids: %w", err)
	}

	pipe := r.rc.TxPipeline()
	for _, rawID := range trackIDs {
		pipe.Del(ctx, "room:"+roomCode+":track:"+rawID)
	}
	pipe.Del(ctx, queueKey)
	pipe.Del(ctx, r.getPlayerKey(roomCode))

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove room: %w", err)
	}

	return nil
}
