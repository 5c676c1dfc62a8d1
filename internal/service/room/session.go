package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tunesync/server/internal/provider"
	"github.com/tunesync/server/internal/repository/room"
)

const persistTimeout = 5 * time.Second

// Session is the single-owner executor of one room: every mutation of
// its queue, engine and clock happens under s.mu, so concurrent votes,
// adds and clock ticks never interleave.
type Session struct {
	code string

	mu     sync.Mutex
	active bool
	wg     sync.WaitGroup

	queue     *queueManager
	clock     *playbackClock
	engine    *playbackEngine
	providers iProviderRegistry
	hub       iHub
	store     iRoomStore
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(code string, store iRoomStore, providers iProviderRegistry, hub iHub, cfg *Config, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		code:      code,
		active:    true,
		providers: providers,
		hub:       hub,
		store:     store,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.queue = newQueueManager(cfg.QueueLimit)
	s.clock = newPlaybackClock(nil)
	s.engine = newPlaybackEngine(&s.mu, s.queue, s.clock, providers, engineConfig{
		retryCeiling:   cfg.RetryCeiling,
		resolveTimeout: cfg.ResolveTimeout,
		retryBaseDelay: cfg.RetryBaseDelay,
	}, engineHooks{
		publishState:  s.publishPlayerState,
		publishQueue:  s.publishQueueSnapshot,
		trackFailed:   s.publishTrackFailed,
		trackDequeued: s.persistTrackRemoval,
	}, logger)

	// returned locked; start releases the lock after restoring, so no
	// operation observes a half-restored room
	s.mu.Lock()

	return s
}

func (s *Session) start(tickInterval time.Duration) {
	s.restore()
	s.mu.Unlock()

	go s.run(tickInterval)
}

func (s *Session) Code() string {
	return s.code
}

type AddTrackParams struct {
	Title     string
	Artist    string
	Provider  string
	AddedByID string
}

func (s *Session) AddTrack(ctx context.Context, params *AddTrackParams) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return QueueEntry{}, ErrRoomInactive
	}

	providerID := params.Provider
	if providerID == "" {
		providerID = provider.ITunesID
	}
	if _, err := s.providers.Get(providerID); err != nil {
		return QueueEntry{}, fmt.Errorf("failed to look up provider: %w", err)
	}

	entry, err := s.queue.add(params.Title, params.Artist, providerID, params.AddedByID, time.Now().UnixMilli())
	if err != nil {
		return QueueEntry{}, fmt.Errorf("failed to add track: %w", err)
	}

	s.persistTrack(entry)
	s.hub.Broadcast(s.code, &Output{
		Type: "TRACK_ADDED",
		Payload: map[string]any{
			"added_track": entry,
			"queue":       s.queue.snapshot(),
		},
	})

	return entry, nil
}

type VoteParams struct {
	EntryID int
	Delta   int
}

func (s *Session) Vote(ctx context.Context, params *VoteParams) (QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return QueueEntry{}, ErrRoomInactive
	}

	entry, err := s.queue.vote(params.EntryID, params.Delta)
	if err != nil {
		return QueueEntry{}, fmt.Errorf("failed to vote: %w", err)
	}

	s.persistVotes(entry)
	s.publishQueueSnapshot(s.queue.snapshot())

	return entry, nil
}

func (s *Session) RemoveTrack(ctx context.Context, entryID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ErrRoomInactive
	}

	if err := s.queue.remove(entryID); err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}

	s.persistTrackRemoval(QueueEntry{ID: entryID})
	s.hub.Broadcast(s.code, &Output{
		Type: "TRACK_REMOVED",
		Payload: map[string]any{
			"removed_track_id": entryID,
			"queue":            s.queue.snapshot(),
		},
	})

	return nil
}

func (s *Session) Play(ctx context.Context) (PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return PlaybackState{}, ErrRoomInactive
	}

	return s.engine.play(s.ctx), nil
}

func (s *Session) Pause(ctx context.Context) (PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return PlaybackState{}, ErrRoomInactive
	}

	return s.engine.pause(), nil
}

func (s *Session) Skip(ctx context.Context) (PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return PlaybackState{}, ErrRoomInactive
	}

	return s.engine.skip(s.ctx), nil
}

func (s *Session) Seek(ctx context.Context, positionMS int64) (PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return PlaybackState{}, ErrRoomInactive
	}

	return s.engine.seek(positionMS), nil
}

func (s *Session) CurrentSnapshot() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.engine.state()
}

func (s *Session) QueueSnapshot() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.snapshot()
}

func (s *Session) State() RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return RoomState{
		RoomCode: s.code,
		Player:   s.engine.state(),
		Queue:    s.queue.snapshot(),
	}
}

// Close is the only fatal path of a session: it cancels the clock
// schedule and any pending resolution, drops all subscriptions, and
// waits for in-flight persistence writes.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.cancel()
	s.hub.DropRoom(s.code)
	s.wg.Wait()
	s.logger.Info("room closed", "room_code", s.code)
}

// run submits clock ticks on the room's serialization point.
func (s *Session) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.active {
				s.engine.tick(s.ctx)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) restore() {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()

	tracks, err := s.store.LoadQueue(ctx, s.code)
	if err != nil {
		s.logger.Warn("failed to load queue", "room_code", s.code, "error", err)
		return
	}

	entries := make([]QueueEntry, 0, len(tracks))
	for _, track := range tracks {
		entries = append(entries, QueueEntry{
			ID:        track.ID,
			Title:     track.Title,
			Artist:    track.Artist,
			Provider:  track.Provider,
			Votes:     track.Votes,
			AddedByID: track.AddedByID,
			AddedAt:   track.AddedAt,
		})
	}
	s.queue.restore(entries)

	player, err := s.store.LoadPlayer(ctx, s.code)
	if err != nil {
		if !errors.Is(err, room.ErrPlayerNotFound) {
			s.logger.Warn("failed to load player", "room_code", s.code, "error", err)
		}
		return
	}

	if player.CurrentTrackID == 0 {
		return
	}

	entry := &QueueEntry{
		ID:     player.CurrentTrackID,
		Title:  player.Title,
		Artist: player.Artist,
	}
	if entry.ID >= s.queue.nextID {
		s.queue.nextID = entry.ID + 1
	}
	s.engine.restoreState(entry, player.StreamURL, player.PositionMS, player.DurationMS)
}

// broadcast-and-persist hooks. Invoked under the session lock;
// persistence runs out of line so a slow write never blocks a
// mutation, and write failures are logged, never surfaced.

func (s *Session) publishPlayerState(state PlaybackState) {
	s.hub.Broadcast(s.code, &Output{
		Type: "PLAYER_UPDATED",
		Payload: map[string]any{
			"player": state,
		},
	})

	if s.store == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		params := room.SavePlayerParams{
			RoomCode: s.code,
			Player: room.Player{
				Status:     string(state.Status),
				Title:      state.Title,
				Artist:     state.Artist,
				StreamURL:  state.StreamURL,
				PositionMS: state.PositionMS,
				DurationMS: state.DurationMS,
				IsPlaying:  state.IsPlaying,
				UpdatedAt:  state.UpdatedAt,
			},
		}
		if state.CurrentEntryID != nil {
			params.CurrentTrackID = *state.CurrentEntryID
		}

		if err := s.store.SavePlayer(ctx, &params); err != nil {
			s.logger.Warn("failed to persist player", "room_code", s.code, "error", err)
		}
	}()
}

func (s *Session) publishQueueSnapshot(queue []QueueEntry) {
	s.hub.Broadcast(s.code, &Output{
		Type: "QUEUE_UPDATED",
		Payload: map[string]any{
			"queue": queue,
		},
	})
}

func (s *Session) publishTrackFailed(entry QueueEntry) {
	s.logger.Warn("track skipped after failed resolution",
		"room_code", s.code,
		"entry_id", entry.ID,
		"title", entry.Title,
		"artist", entry.Artist,
	)
	s.hub.Broadcast(s.code, &Output{
		Type: "TRACK_FAILED",
		Payload: map[string]any{
			"failed_track": entry,
		},
	})
}

func (s *Session) persistTrack(entry QueueEntry) {
	if s.store == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.store.SaveTrack(ctx, &room.SaveTrackParams{
			TrackID:   entry.ID,
			RoomCode:  s.code,
			Title:     entry.Title,
			Artist:    entry.Artist,
			Provider:  entry.Provider,
			Votes:     entry.Votes,
			AddedByID: entry.AddedByID,
			AddedAt:   entry.AddedAt,
		}); err != nil {
			s.logger.Warn("failed to persist track", "room_code", s.code, "entry_id", entry.ID, "error", err)
		}
	}()
}

func (s *Session) persistVotes(entry QueueEntry) {
	if s.store == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.store.UpdateTrackVotes(ctx, &room.UpdateTrackVotesParams{
			TrackID:  entry.ID,
			RoomCode: s.code,
			Votes:    entry.Votes,
		}); err != nil && !errors.Is(err, room.ErrTrackNotFound) {
			s.logger.Warn("failed to persist votes", "room_code", s.code, "entry_id", entry.ID, "error", err)
		}
	}()
}

func (s *Session) persistTrackRemoval(entry QueueEntry) {
	if s.store == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.store.RemoveTrack(ctx, &room.RemoveTrackParams{
			TrackID:  entry.ID,
			RoomCode: s.code,
		}); err != nil && !errors.Is(err, room.ErrTrackNotFound) {
			s.logger.Warn("failed to remove persisted track", "room_code", s.code, "entry_id", entry.ID, "error", err)
		}
	}()
}
