package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/tunesync/server/internal/repository/room"
)

func (r Repo) getTrackKey(roomCode string, trackID int) string {
	return "room:" + roomCode + ":track:" + strconv.Itoa(trackID)
}

func (r Repo) getQueueKey(roomCode string) string {
	return "room:" + roomCode + ":queue"
}

func (r Repo) SaveTrack(ctx context.Context, params *room.SaveTrackParams) error {
	pipe := r.rc.TxPipeline()

	track := room.Track{
		Title:     params.Title,
		Artist:    params.Artist,
		Provider:  params.Provider,
		Votes:     params.Votes,
		AddedByID: params.AddedByID,
		AddedAt:   params.AddedAt,
	}
	trackKey := r.getTrackKey(params.RoomCode, params.TrackID)
	pipe.HSet(ctx, trackKey, track)
	pipe.Expire(ctx, trackKey, r.expireDuration)

	// score = track id keeps the index iteration stable; the vote
	// ordering is rebuilt in memory on load
	queueKey := r.getQueueKey(params.RoomCode)
	pipe.ZAdd(ctx, queueKey, redis.Z{Score: float64(params.TrackID), Member: strconv.Itoa(params.TrackID)})
	pipe.Expire(ctx, queueKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to save track: %w", err)
	}

	return nil
}

func (r Repo) UpdateTrackVotes(ctx context.Context, params *room.UpdateTrackVotesParams) error {
	trackKey := r.getTrackKey(params.RoomCode, params.TrackID)
	cmd := r.rc.Exists(ctx, trackKey)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("failed to check if track exists: %w", err)
	}

	if cmd.Val() == 0 {
		return room.ErrTrackNotFound
	}

	if err := r.rc.HSet(ctx, trackKey, "votes", params.Votes).Err(); err != nil {
		return fmt.Errorf("failed to update track votes: %w", err)
	}

	r.rc.Expire(ctx, trackKey, r.expireDuration)

	return nil
}

func (r Repo) RemoveTrack(ctx context.Context, params *room.RemoveTrackParams) error {
	res, err := r.rc.ZRem(ctx, r.getQueueKey(params.RoomCode), strconv.Itoa(params.TrackID)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove track from queue: %w", err)
	}

	if res == 0 {
		return room.ErrTrackNotFound
	}

	if err := r.rc.Del(ctx, r.getTrackKey(params.RoomCode, params.TrackID)).Err(); err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}

	return nil
}

func (r Repo) LoadQueue(ctx context.Context, roomCode string) ([]room.QueueTrack, error) {
	queueKey := r.getQueueKey(roomCode)
	trackIDs, err := r.rc.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get track ids: %w", err)
	}

	r.rc.Expire(ctx, queueKey, r.expireDuration)

	tracks := make([]room.QueueTrack, 0, len(trackIDs))
	for _, rawID := range trackIDs {
		trackID, err := strconv.Atoi(rawID)
		if err != nil {
			continue
		}

		var track room.Track
		trackKey := r.getTrackKey(roomCode, trackID)
		if err := r.rc.HGetAll(ctx, trackKey).Scan(&track); err != nil {
			return nil, fmt.Errorf("failed to get track: %w", err)
		}

		if track.Title == "" {
			continue
		}

		r.rc.Expire(ctx, trackKey, r.expireDuration)

		tracks = append(tracks, room.QueueTrack{ID: trackID, Track: track})
	}

	return tracks, nil
}
