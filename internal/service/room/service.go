package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tunesync/server/internal/provider"
	"github.com/tunesync/server/internal/repository/room"
	"github.com/tunesync/server/pkg/randstr"
)

var (
	ErrQueueFull      = errors.New("queue is full")
	ErrDuplicateTrack = errors.New("track already queued")
	ErrEntryNotFound  = errors.New("queue entry not found")
	ErrRoomInactive   = errors.New("room is inactive")
	ErrRoomNotFound   = errors.New("room not found")
)

type iRoomStore interface {
	SaveTrack(context.Context, *room.SaveTrackParams) error
	UpdateTrackVotes(context.Context, *room.UpdateTrackVotesParams) error
	RemoveTrack(context.Context, *room.RemoveTrackParams) error
	LoadQueue(ctx context.Context, roomCode string) ([]room.QueueTrack, error)
	SavePlayer(context.Context, *room.SavePlayerParams) error
	LoadPlayer(ctx context.Context, roomCode string) (room.Player, error)
	RemoveRoom(ctx context.Context, roomCode string) error
}

type iProviderRegistry interface {
	Get(id string) (provider.MusicProvider, error)
}

type iHub interface {
	Broadcast(roomCode string, message any)
	DropRoom(roomCode string)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	QueueLimit     int
	RetryCeiling   int
	ResolveTimeout time.Duration
	RetryBaseDelay time.Duration
	TickInterval   time.Duration
	IdleTimeout    time.Duration
	Persistence    bool
}

// Service is the room registry: it creates and looks up sessions by
// room code and owns their lifecycle.
type Service struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	idleTimers map[string]*time.Timer

	store     iRoomStore
	providers iProviderRegistry
	hub       iHub
	generator iGenerator
	cfg       *Config
	logger    *slog.Logger
}

func NewService(store iRoomStore, providers iProviderRegistry, hub iHub, cfg *Config, logger *slog.Logger) *Service {
	s := Service{
		sessions:   make(map[string]*Session),
		idleTimers: make(map[string]*time.Timer),
		providers:  providers,
		hub:        hub,
		cfg:        cfg,
		logger:     logger,
	}

	if cfg.Persistence {
		s.store = store
	}

	letterBytes := []byte("ABCDEFGHJKMNPQRSTUVWXYZ23456789")
	s.generator = randstr.New(letterBytes)

	return &s
}

func (s *Service) NewRoomCode() string {
	return s.generator.GenerateRandomString(8)
}

func (s *Service) GetOrCreate(ctx context.Context, roomCode string) (*Session, error) {
	s.mu.Lock()

	if session, ok := s.sessions[roomCode]; ok {
		s.mu.Unlock()
		return session, nil
	}

	session := newSession(roomCode, s.store, s.providers, s.hub, s.cfg, s.logger)
	s.sessions[roomCode] = session
	// a room starts with zero subscribers; the countdown is cancelled
	// by the first subscribe
	s.armIdleTimer(roomCode)
	s.mu.Unlock()

	// restore runs outside the registry lock so one room's slow store
	// never stalls another room's lookup
	session.start(s.cfg.TickInterval)
	s.logger.InfoContext(ctx, "room created", "room_code", roomCode)

	return session, nil
}

func (s *Service) Get(roomCode string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[roomCode]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return session, nil
}

// Close destroys the room: the session is closed and its persisted
// state is deleted. Idle closes keep the persisted state so a room
// re-created with the same code restores its queue.
func (s *Service) Close(roomCode string) error {
	return s.closeRoom(roomCode, true)
}

func (s *Service) closeRoom(roomCode string, purge bool) error {
	s.mu.Lock()
	session, ok := s.sessions[roomCode]
	if !ok {
		s.mu.Unlock()
		return ErrRoomNotFound
	}

	delete(s.sessions, roomCode)
	if timer, ok := s.idleTimers[roomCode]; ok {
		timer.Stop()
		delete(s.idleTimers, roomCode)
	}
	s.mu.Unlock()

	session.Close()

	if purge && s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.store.RemoveRoom(ctx, roomCode); err != nil {
			s.logger.Warn("failed to remove persisted room", "room_code", roomCode, "error", err)
		}
	}

	return nil
}

// HandleRoomEmpty starts the idle-timeout countdown. It is wired as
// the hub's room-empty callback.
func (s *Service) HandleRoomEmpty(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[roomCode]; !ok {
		return
	}

	s.armIdleTimer(roomCode)
}

// armIdleTimer must be called with s.mu held.
func (s *Service) armIdleTimer(roomCode string) {
	if timer, ok := s.idleTimers[roomCode]; ok {
		timer.Stop()
	}

	s.idleTimers[roomCode] = time.AfterFunc(s.cfg.IdleTimeout, func() {
		s.logger.Info("closing idle room", "room_code", roomCode)
		if err := s.closeRoom(roomCode, false); err != nil && !errors.Is(err, ErrRoomNotFound) {
			s.logger.Warn("failed to close idle room", "room_code", roomCode, "error", err)
		}
	})
}

// HandleRoomOccupied cancels a pending idle-timeout countdown.
func (s *Service) HandleRoomOccupied(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.idleTimers[roomCode]; ok {
		timer.Stop()
		delete(s.idleTimers, roomCode)
	}
}

// Shutdown closes every session; used on graceful app shutdown.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for code, session := range s.sessions {
		sessions = append(sessions, session)
		delete(s.sessions, code)
	}
	for code, timer := range s.idleTimers {
		timer.Stop()
		delete(s.idleTimers, code)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
