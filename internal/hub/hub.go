package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is the subset of *websocket.Conn the hub needs; tests plug in
// fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type Config struct {
	// KeepaliveInterval is how often liveness is checked; a subscriber
	// missing AllowedMisses consecutive intervals is evicted.
	KeepaliveInterval time.Duration
	AllowedMisses     int
	// SendBuffer is the per-subscriber outbound queue; a subscriber
	// whose queue is full is evicted rather than allowed to block the
	// producer.
	SendBuffer int
	// OnRoomEmpty fires when the last subscription in a room is
	// removed, OnRoomOccupied when a room goes from zero subscribers
	// to one. Both may be nil.
	OnRoomEmpty    func(roomCode string)
	OnRoomOccupied func(roomCode string)
}

type subscriber struct {
	id       string
	roomCode string
	conn     Conn
	out      chan any
	done     chan struct{}
	touched  bool
	missed   int
}

// Hub tracks which connections belong to which room and fans room
// snapshots out to them.
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]*subscriber
	rooms map[string]map[string]*subscriber

	cfg    *Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *Config, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		subs:   make(map[string]*subscriber),
		rooms:  make(map[string]map[string]*subscriber),
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	go h.sweep()

	return h
}

func (h *Hub) Subscribe(roomCode string, conn Conn) string {
	sub := &subscriber{
		id:       uuid.NewString(),
		roomCode: roomCode,
		conn:     conn,
		out:      make(chan any, h.cfg.SendBuffer),
		done:     make(chan struct{}),
		touched:  true,
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	roomSubs, ok := h.rooms[roomCode]
	if !ok {
		roomSubs = make(map[string]*subscriber)
		h.rooms[roomCode] = roomSubs
	}
	roomSubs[sub.id] = sub
	first := len(roomSubs) == 1
	h.mu.Unlock()

	go h.writeLoop(sub)

	h.logger.Debug("subscriber added", "room_code", roomCode, "subscription_id", sub.id)
	if first && h.cfg.OnRoomOccupied != nil {
		h.cfg.OnRoomOccupied(roomCode)
	}

	return sub.id
}

func (h *Hub) Unsubscribe(subscriptionID string) {
	h.unsubscribe(subscriptionID, true)
}

// Touch records a liveness signal from the subscriber.
func (h *Hub) Touch(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[subscriptionID]; ok {
		sub.touched = true
	}
}

// Send queues the message to one subscriber. It goes through the same
// outbound channel broadcasts use, so the conn only ever has the
// writeLoop as its writer.
func (h *Hub) Send(subscriptionID string, message any) {
	h.mu.RLock()
	sub, ok := h.subs[subscriptionID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	select {
	case <-sub.done:
		return
	default:
	}

	select {
	case sub.out <- message:
	case <-sub.done:
	default:
		h.logger.Warn("evicting slow subscriber", "room_code", sub.roomCode, "subscription_id", sub.id)
		h.unsubscribe(sub.id, true)
	}
}

// Broadcast queues the message to every live subscriber of the room.
// A subscriber that cannot keep up is evicted, never waited on.
func (h *Hub) Broadcast(roomCode string, message any) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.rooms[roomCode]))
	for _, sub := range h.rooms[roomCode] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var slow []string
	for _, sub := range subs {
		select {
		case <-sub.done:
			continue
		default:
		}

		select {
		case sub.out <- message:
		case <-sub.done:
		default:
			slow = append(slow, sub.id)
		}
	}

	for _, id := range slow {
		h.logger.Warn("evicting slow subscriber", "room_code", roomCode, "subscription_id", id)
		h.unsubscribe(id, true)
	}
}

// DropRoom removes every subscription of a closed room without firing
// the room-empty callback.
func (h *Hub) DropRoom(roomCode string) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.rooms[roomCode]))
	for id := range h.rooms[roomCode] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.unsubscribe(id, false)
	}
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.RLock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.unsubscribe(id, false)
	}
}

func (h *Hub) unsubscribe(subscriptionID string, notify bool) {
	h.mu.Lock()
	sub, ok := h.subs[subscriptionID]
	if !ok {
		h.mu.Unlock()
		return
	}

	delete(h.subs, subscriptionID)
	delete(h.rooms[sub.roomCode], subscriptionID)
	empty := len(h.rooms[sub.roomCode]) == 0
	if empty {
		delete(h.rooms, sub.roomCode)
	}
	h.mu.Unlock()

	close(sub.done)
	sub.conn.Close()

	h.logger.Debug("subscriber removed", "room_code", sub.roomCode, "subscription_id", subscriptionID)
	if empty && notify && h.cfg.OnRoomEmpty != nil {
		h.cfg.OnRoomEmpty(sub.roomCode)
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case message := <-sub.out:
			if err := sub.conn.WriteJSON(message); err != nil {
				h.logger.Debug("failed to write to subscriber", "subscription_id", sub.id, "error", err)
				h.unsubscribe(sub.id, true)
				return
			}
		}
	}
}

// sweep evicts subscribers that missed too many consecutive liveness
// intervals.
func (h *Hub) sweep() {
	ticker := time.NewTicker(h.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			var stale []string
			for id, sub := range h.subs {
				if sub.touched {
					sub.touched = false
					sub.missed = 0
					continue
				}

				sub.missed++
				if sub.missed >= h.cfg.AllowedMisses {
					stale = append(stale, id)
				}
			}
			h.mu.Unlock()

			for _, id := range stale {
				h.logger.Info("evicting unresponsive subscriber", "subscription_id", id)
				h.unsubscribe(id, true)
			}
		}
	}
}
