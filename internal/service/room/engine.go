package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tunesync/server/internal/provider"
)

type engineConfig struct {
	retryCeiling   int
	resolveTimeout time.Duration
	retryBaseDelay time.Duration
}

// engineHooks are invoked while the session lock is held; they must
// not take it again.
type engineHooks struct {
	publishState  func(PlaybackState)
	publishQueue  func([]QueueEntry)
	trackFailed   func(QueueEntry)
	trackDequeued func(QueueEntry)
}

// playbackEngine drives the playback state machine of one room. All
// methods except resolve must be called with the session lock held.
type playbackEngine struct {
	mu        *sync.Mutex
	queue     *queueManager
	clock     *playbackClock
	providers iProviderRegistry
	cfg       engineConfig
	hooks     engineHooks
	logger    *slog.Logger

	status     PlaybackStatus
	current    *QueueEntry
	handle     provider.StreamHandle
	resolveGen int
	nowMS      func() int64
}

func newPlaybackEngine(mu *sync.Mutex, queue *queueManager, clock *playbackClock, providers iProviderRegistry, cfg engineConfig, hooks engineHooks, logger *slog.Logger) *playbackEngine {
	return &playbackEngine{
		mu:        mu,
		queue:     queue,
		clock:     clock,
		providers: providers,
		cfg:       cfg,
		hooks:     hooks,
		logger:    logger,
		status:    StatusIdle,
		nowMS: func() int64 {
			return time.Now().UnixMilli()
		},
	}
}

func (e *playbackEngine) play(ctx context.Context) PlaybackState {
	switch e.status {
	case StatusPaused:
		e.clock.resume()
		e.status = StatusPlaying
		e.publish()
	case StatusIdle, StatusEnded:
		e.startNext(ctx)
	default:
		e.publish()
	}

	return e.state()
}

func (e *playbackEngine) pause() PlaybackState {
	if e.status == StatusPlaying {
		e.clock.pause()
		e.status = StatusPaused
		e.publish()
	}

	return e.state()
}

// skip abandons the current track (and any in-flight resolution) and
// immediately attempts the next queue entry.
func (e *playbackEngine) skip(ctx context.Context) PlaybackState {
	e.resolveGen++
	e.clock.stop()
	e.current = nil
	e.handle = provider.StreamHandle{}
	e.status = StatusIdle
	e.startNext(ctx)

	return e.state()
}

func (e *playbackEngine) seek(positionMS int64) PlaybackState {
	if e.current != nil && (e.status == StatusPlaying || e.status == StatusPaused) {
		e.clock.seek(positionMS)
		e.publish()
	}

	return e.state()
}

// tick checks for track end and pushes an incremental position update.
func (e *playbackEngine) tick(ctx context.Context) {
	if e.status != StatusPlaying {
		return
	}

	if e.clock.ended() {
		e.status = StatusEnded
		e.publish()

		e.clock.stop()
		e.current = nil
		e.handle = provider.StreamHandle{}
		e.startNext(ctx)
		return
	}

	e.publish()
}

func (e *playbackEngine) startNext(ctx context.Context) {
	entry, ok := e.queue.popNext()
	if !ok {
		e.status = StatusIdle
		e.current = nil
		e.handle = provider.StreamHandle{}
		e.publish()
		return
	}

	e.current = &entry
	e.status = StatusResolving
	e.resolveGen++

	if e.hooks.trackDequeued != nil {
		e.hooks.trackDequeued(entry)
	}
	if e.hooks.publishQueue != nil {
		e.hooks.publishQueue(e.queue.snapshot())
	}
	e.publish()

	go e.resolve(ctx, e.resolveGen, entry)
}

// resolve runs outside the session lock so a slow provider call never
// stalls queue or vote operations.
func (e *playbackEngine) resolve(ctx context.Context, gen int, entry QueueEntry) {
	p, err := e.providers.Get(entry.Provider)
	if err != nil {
		e.logger.Warn("unknown track provider", "provider", entry.Provider, "error", err)
		e.completeResolve(ctx, gen, entry, provider.StreamHandle{}, err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.retryCeiling; attempt++ {
		resolveCtx, cancel := context.WithTimeout(ctx, e.cfg.resolveTimeout)
		handle, err := p.Resolve(resolveCtx, entry.Title, entry.Artist)
		cancel()

		if err == nil {
			e.completeResolve(ctx, gen, entry, handle, nil)
			return
		}

		lastErr = err
		e.logger.Warn("track resolution failed",
			"title", entry.Title,
			"artist", entry.Artist,
			"attempt", attempt,
			"error", err,
		)

		// retrying will not help when the track does not exist
		if errors.Is(err, provider.ErrTrackNotFound) {
			break
		}
		if attempt == e.cfg.retryCeiling {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cfg.retryBaseDelay << (attempt - 1)):
		}
	}

	e.completeResolve(ctx, gen, entry, provider.StreamHandle{}, lastErr)
}

// completeResolve reintegrates a resolution result into the room's
// serialized state. Results that arrive after a skip or close are
// discarded via the generation counter.
func (e *playbackEngine) completeResolve(ctx context.Context, gen int, entry QueueEntry, handle provider.StreamHandle, resErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if gen != e.resolveGen || e.status != StatusResolving {
		return
	}

	if resErr != nil {
		if e.hooks.trackFailed != nil {
			e.hooks.trackFailed(entry)
		}
		e.current = nil
		e.handle = provider.StreamHandle{}
		e.status = StatusIdle
		e.startNext(ctx)
		return
	}

	e.handle = handle
	e.status = StatusPlaying
	e.clock.start(handle.DurationMS)
	e.publish()
}

func (e *playbackEngine) restoreState(entry *QueueEntry, streamURL string, positionMS, durationMS int64) {
	if entry == nil {
		e.status = StatusIdle
		return
	}

	e.current = entry
	e.handle = provider.StreamHandle{URL: streamURL, DurationMS: durationMS}
	e.clock.restore(positionMS, durationMS)
	e.status = StatusPaused
}

func (e *playbackEngine) state() PlaybackState {
	state := PlaybackState{
		Status:     e.status,
		PositionMS: e.clock.currentPosition(),
		DurationMS: e.clock.durationMS,
		IsPlaying:  e.status == StatusPlaying,
		UpdatedAt:  e.nowMS(),
	}

	if e.current != nil {
		entryID := e.current.ID
		state.CurrentEntryID = &entryID
		state.Title = e.current.Title
		state.Artist = e.current.Artist
		state.StreamURL = e.handle.URL
	}

	return state
}

func (e *playbackEngine) publish() {
	if e.hooks.publishState != nil {
		e.hooks.publishState(e.state())
	}
}
