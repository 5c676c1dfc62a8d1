package room

// Player is the persisted playback snapshot for a room. A zero
// CurrentTrackID means no current track (ids start at 1).
type Player struct {
	Status         string `redis:"status"`
	CurrentTrackID int    `redis:"current_track_id"`
	Title          string `redis:"title"`
	Artist         string `redis:"artist"`
	StreamURL      string `redis:"stream_url"`
	PositionMS     int64  `redis:"position_ms"`
	DurationMS     int64  `redis:"duration_ms"`
	IsPlaying      bool   `redis:"is_playing"`
	UpdatedAt      int64  `redis:"updated_at"`
}

type SavePlayerParams struct {
	Player
	RoomCode string
}
