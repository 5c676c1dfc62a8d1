package room

type Track struct {
	Title     string `redis:"title"`
	Artist    string `redis:"artist"`
	Provider  string `redis:"provider"`
	Votes     int    `redis:"votes"`
	AddedByID string `redis:"added_by_id"`
	AddedAt   int64  `redis:"added_at"`
}

// QueueTrack is a queued track together with its room-scoped id.
type QueueTrack struct {
	ID int
	Track
}

type SaveTrackParams struct {
	TrackID   int
	RoomCode  string
	Title     string
	Artist    string
	Provider  string
	Votes     int
	AddedByID string
	AddedAt   int64
}

type UpdateTrackVotesParams struct {
	TrackID  int
	RoomCode string
	Votes    int
}

type RemoveTrackParams struct {
	TrackID  int
	RoomCode string
}
