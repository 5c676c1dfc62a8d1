package room

import "errors"

var (
	ErrTrackNotFound  = errors.New("track not found")
	ErrPlayerNotFound = errors.New("player not found")
)
