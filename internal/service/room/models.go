package room

type PlaybackStatus string

const (
	StatusIdle      PlaybackStatus = "idle"
	StatusResolving PlaybackStatus = "resolving"
	StatusPlaying   PlaybackStatus = "playing"
	StatusPaused    PlaybackStatus = "paused"
	StatusEnded     PlaybackStatus = "ended"
)

// QueueEntry is immutable once queued, except for Votes.
type QueueEntry struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Provider  string `json:"provider"`
	Votes     int    `json:"votes"`
	AddedByID string `json:"added_by_id"`
	AddedAt   int64  `json:"added_at"`
}

// PlaybackState is the authoritative playback snapshot of a room.
// PositionMS is the drift-corrected position at UpdatedAt (unix ms).
type PlaybackState struct {
	Status         PlaybackStatus `json:"status"`
	CurrentEntryID *int           `json:"current_entry_id"`
	Title          string         `json:"title,omitempty"`
	Artist         string         `json:"artist,omitempty"`
	StreamURL      string         `json:"stream_url,omitempty"`
	PositionMS     int64          `json:"position_ms"`
	DurationMS     int64          `json:"duration_ms"`
	IsPlaying      bool           `json:"is_playing"`
	UpdatedAt      int64          `json:"updated_at"`
}

type RoomState struct {
	RoomCode string        `json:"room_code"`
	Player   PlaybackState `json:"player"`
	Queue    []QueueEntry  `json:"queue"`
}

// Output is the envelope pushed to every room subscriber.
type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
