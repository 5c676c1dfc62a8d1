package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunesync/server/internal/provider"
	"github.com/tunesync/server/internal/repository/room"
)

type fakeHub struct {
	mu       sync.Mutex
	messages []*Output
	dropped  []string
}

func (h *fakeHub) Broadcast(roomCode string, message any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if out, ok := message.(*Output); ok {
		h.messages = append(h.messages, out)
	}
}

func (h *fakeHub) DropRoom(roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropped = append(h.dropped, roomCode)
}

func (h *fakeHub) typeCount(messageType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, msg := range h.messages {
		if msg.Type == messageType {
			count++
		}
	}

	return count
}

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	handle   provider.StreamHandle
}

func (p *fakeProvider) Resolve(ctx context.Context, title, artist string) (provider.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.err != nil {
		return provider.StreamHandle{}, p.err
	}
	if p.calls <= p.failures {
		return provider.StreamHandle{}, provider.ErrUnavailable
	}

	return p.handle, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

type fakeRegistry struct {
	p provider.MusicProvider
}

func (r fakeRegistry) Get(id string) (provider.MusicProvider, error) {
	return r.p, nil
}

func testConfig() *Config {
	return &Config{
		QueueLimit:     10,
		RetryCeiling:   3,
		ResolveTimeout: 100 * time.Millisecond,
		RetryBaseDelay: time.Millisecond,
		TickInterval:   10 * time.Millisecond,
		IdleTimeout:    time.Minute,
		Persistence:    false,
	}
}

func newTestService(p provider.MusicProvider) (*Service, *fakeHub) {
	h := &fakeHub{}
	service := NewService(nil, fakeRegistry{p: p}, h, testConfig(), slog.Default())

	return service, h
}

func TestSessionPlaysNextTrack(t *testing.T) {
	p := &fakeProvider{handle: provider.StreamHandle{URL: "http://stream/a", DurationMS: 180_000}}
	service, h := newTestService(p)

	ctx := context.Background()
	session, err := service.GetOrCreate(ctx, "ROOM1")
	require.NoError(t, err)
	defer session.Close()

	entry, err := session.AddTrack(ctx, &AddTrackParams{Title: "Track A", Artist: "Artist", AddedByID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, 1, entry.ID)
	assert.Equal(t, provider.ITunesID, entry.Provider, "empty provider must fall back to the default")

	_, err = session.Play(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return session.CurrentSnapshot().Status == StatusPlaying
	}, 2*time.Second, 10*time.Millisecond)

	state := session.CurrentSnapshot()
	require.NotNil(t, state.CurrentEntryID)
	assert.Equal(t, entry.ID, *state.CurrentEntryID)
	assert.Equal(t, "http://stream/a", state.StreamURL)
	assert.EqualValues(t, 180_000, state.DurationMS)
	assert.True(t, state.IsPlaying)

	assert.Empty(t, session.QueueSnapshot(), "playing track must leave the queue")
	assert.GreaterOrEqual(t, h.typeCount("PLAYER_UPDATED"), 1)
}

func TestSessionRetriesResolution(t *testing.T) {
	p := &fakeProvider{
		failures: 2,
		handle:   provider.StreamHandle{URL: "http://stream/a", DurationMS: 180_000},
	}
	service, _ := newTestService(p)

	ctx := context.Background()
	session, err := service.GetOrCreate(ctx, "ROOM1")
	require.NoError(t, err)
	defer session.Close()

	_, err = session.AddTrack(ctx, &AddTrackParams{Title: "Track A", Artist: "Artist", AddedByID: "m1"})
	require.NoError(t, err)
	_, err = session.Play(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return session.CurrentSnapshot().Status == StatusPlaying
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, p.callCount(), "two failures then a success")
}

func TestSessionSkipsUnresolvableTrack(t *testing.T) {
	p := &fakeProvider{err: provider.ErrTrackNotFound}
	service, h := newTestService(p)

	ctx := context.Background()
	session, err := service.GetOrCreate(ctx, "ROOM1")
	require.NoError(t, err)
	defer session.Close()

	_, err = session.AddTrack(ctx, &AddTrackParams{Title: "Missing", Artist: "Nobody", AddedByID: "m1"})
	require.NoError(t, err)
	_, err = session.Play(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.typeCount("TRACK_FAILED") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return session.CurrentSnapshot().Status == StatusIdle
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, p.callCount(), "a missing track must not be retried")
}

func TestSessionAdvancesWhenTrackEnds(t *testing.T) {
	p := &fakeProvider{handle: provider.StreamHandle{URL: "http://stream", DurationMS: 50}}
	service, _ := newTestService(p)

	ctx := context.Background()
	session, err := service.GetOrCreate(ctx, "ROOM1")
	require.NoError(t, err)
	defer session.Close()

	_, err = session.AddTrack(ctx, &AddTrackParams{Title: "Track A", Artist: "Artist", AddedByID: "m1"})
	require.NoError(t, err)
	second, err := session.AddTrack(ctx, &AddTrackParams{Title: "Track B", Artist: "Artist", AddedByID: "m1"})
	require.NoError(t, err)

	_, err = session.Play(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state := session.CurrentSnapshot()
		return state.CurrentEntryID != nil && *state.CurrentEntryID == second.ID && state.Status == StatusPlaying
	}, 3*time.Second, 10*time.Millisecond, "ended track must hand off to the next entry")
}

func TestSessionPauseAndSeek(t *testing.T) {
	p := &fakeProvider{handle: provider.StreamHandle{URL: "http://stream", DurationMS: 180_000}}
	service, _ := newTestService(p)

	ctx := context.Background()
	session, err := service.GetOrCreate(ctx, "ROOM1")
	require.NoError(t, err)
	defer session.Close()

	_, err = session.AddTrack(ctx, &AddTrackParams{Title: "Track A", Artist: "Artist", AddedByID: "m1"})
	require.NoError(t, err)
	_, err = session.Play(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return session.CurrentSnapshot().Status == StatusPlaying
	}, 2*time.Second, 10*time.Millisecond)

	state, err := session.Pause(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, state.Status)
	assert.False(t, state.IsPlaying)

	state, err = session.Seek(ctx, 60_000)
	require.NoError(t, err)
	assert.EqualValues(t, 60_000, state.PositionMS)

	// out-of-range seeks clamp instead of failing
	state, err = session.Seek(ctx, 999_999_999)
	require.NoError(t, err)
	assert.EqualValues(t, 180_000, state.PositionMS)

	state, err = session.Play(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, state.Status)
}

func TestSessionQueueErrors(t *testing.T) {
	p := &fakeProvider{handle: provider.StreamHandle{URL: "http://stream", DurationMS: 180_000}}
	service, _ := newTestService(p)

	ctx := context.Background()
	session, err := service.GetOrCreate(ctx, "ROOM1")
	require.NoError(t, err)
	defer session.Close()

	_, err = session.AddTrack(ctx, &AddTrackParams{Title: "Track A", Artist: "Artist", AddedByID: "m1"})
	require.NoError(t, err)

	_, err = session.AddTrack(ctx, &AddTrackParams{Title: "track a", Artist: "ARTIST", AddedByID: "m2"})
	assert.ErrorIs(t, err, ErrDuplicateTrack)

	_, err = session.Vote(ctx, &VoteParams{EntryID: 42, Delta: 1})
	assert.ErrorIs(t, err, ErrEntryNotFound)

	err = session.RemoveTrack(ctx, 42)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSessionInactiveAfterClose(t *testing.T) {
	p := &fakeProvider{handle: provider.StreamHandle{URL: "http://stream", DurationMS: 180_000}}
	service, h := newTestService(p)

	ctx := context.Background()
	session, err := service.GetOrCreate(ctx, "ROOM1")
	require.NoError(t, err)

	require.NoError(t, service.Close("ROOM1"))

	_, err = session.AddTrack(ctx, &AddTrackParams{Title: "Track A", Artist: "Artist", AddedByID: "m1"})
	assert.ErrorIs(t, err, ErrRoomInactive)

	_, err = session.Play(ctx)
	assert.ErrorIs(t, err, ErrRoomInactive)

	assert.Equal(t, []string{"ROOM1"}, h.dropped)

	_, err = service.Get("ROOM1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestIdleRoomWithoutSubscribersCloses(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 30 * time.Millisecond

	p := &fakeProvider{}
	service := NewService(nil, fakeRegistry{p: p}, &fakeHub{}, cfg, slog.Default())

	ctx := context.Background()
	_, err := service.GetOrCreate(ctx, "LEAKED")
	require.NoError(t, err)

	// no subscriber ever arrives; the countdown armed at creation must
	// still close the room
	require.Eventually(t, func() bool {
		_, err := service.Get("LEAKED")
		return errors.Is(err, ErrRoomNotFound)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOccupiedRoomSkipsIdleClose(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 30 * time.Millisecond

	p := &fakeProvider{}
	service := NewService(nil, fakeRegistry{p: p}, &fakeHub{}, cfg, slog.Default())

	ctx := context.Background()
	_, err := service.GetOrCreate(ctx, "BUSY")
	require.NoError(t, err)
	service.HandleRoomOccupied("BUSY")

	time.Sleep(150 * time.Millisecond)
	_, err = service.Get("BUSY")
	assert.NoError(t, err, "an occupied room must outlive the idle timeout")

	service.HandleRoomEmpty("BUSY")

	require.Eventually(t, func() bool {
		_, err := service.Get("BUSY")
		return errors.Is(err, ErrRoomNotFound)
	}, 2*time.Second, 10*time.Millisecond)
}

// blockingStore stalls LoadQueue for one room until the gate opens.
type blockingStore struct {
	slowRoom string
	entered  chan struct{}
	gate     chan struct{}
}

func (b *blockingStore) LoadQueue(ctx context.Context, roomCode string) ([]room.QueueTrack, error) {
	if roomCode == b.slowRoom {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-b.gate
	}

	return nil, nil
}

func (b *blockingStore) LoadPlayer(ctx context.Context, roomCode string) (room.Player, error) {
	return room.Player{}, room.ErrPlayerNotFound
}

func (b *blockingStore) SaveTrack(context.Context, *room.SaveTrackParams) error { return nil }
func (b *blockingStore) UpdateTrackVotes(context.Context, *room.UpdateTrackVotesParams) error {
	return nil
}
func (b *blockingStore) RemoveTrack(context.Context, *room.RemoveTrackParams) error { return nil }
func (b *blockingStore) SavePlayer(context.Context, *room.SavePlayerParams) error   { return nil }
func (b *blockingStore) RemoveRoom(ctx context.Context, roomCode string) error      { return nil }

func TestSlowRestoreDoesNotStallOtherRooms(t *testing.T) {
	store := &blockingStore{
		slowRoom: "SLOW",
		entered:  make(chan struct{}, 1),
		gate:     make(chan struct{}),
	}
	cfg := testConfig()
	cfg.Persistence = true

	p := &fakeProvider{handle: provider.StreamHandle{URL: "http://stream", DurationMS: 180_000}}
	service := NewService(store, fakeRegistry{p: p}, &fakeHub{}, cfg, slog.Default())

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := service.GetOrCreate(ctx, "SLOW"); err != nil {
			t.Error(err)
		}
	}()

	<-store.entered

	// other rooms stay reachable while SLOW is restoring
	fast, err := service.GetOrCreate(ctx, "FAST")
	require.NoError(t, err)
	defer fast.Close()

	_, err = fast.AddTrack(ctx, &AddTrackParams{Title: "Track A", Artist: "Artist", AddedByID: "m1"})
	require.NoError(t, err)

	_, err = service.Get("SLOW")
	require.NoError(t, err, "the restoring room is already registered")

	close(store.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slow room creation never finished")
	}
}

func TestServiceRoomCodes(t *testing.T) {
	p := &fakeProvider{}
	service, _ := newTestService(p)

	code := service.NewRoomCode()
	assert.Len(t, code, 8)
	assert.NotEqual(t, code, service.NewRoomCode())
}
