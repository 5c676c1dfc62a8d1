package room

import "time"

// playbackClock derives the true playback position from the last
// recorded position and the wall-clock time elapsed since it was
// recorded, instead of counting ticks. Not safe for concurrent use;
// the session serializes access to it.
type playbackClock struct {
	positionMS int64
	durationMS int64
	isPlaying  bool
	updatedAt  time.Time
	now        func() time.Time
}

func newPlaybackClock(now func() time.Time) *playbackClock {
	if now == nil {
		now = time.Now
	}

	return &playbackClock{now: now}
}

func (c *playbackClock) start(durationMS int64) {
	c.positionMS = 0
	c.durationMS = durationMS
	c.isPlaying = true
	c.updatedAt = c.now()
}

func (c *playbackClock) restore(positionMS, durationMS int64) {
	c.durationMS = durationMS
	c.isPlaying = false
	c.positionMS = clampPosition(positionMS, durationMS)
	c.updatedAt = c.now()
}

// currentPosition is a pure function of the stored state and the
// current time, clamped to the track duration.
func (c *playbackClock) currentPosition() int64 {
	position := c.positionMS
	if c.isPlaying {
		position += c.now().Sub(c.updatedAt).Milliseconds()
	}

	return clampPosition(position, c.durationMS)
}

func (c *playbackClock) pause() {
	c.positionMS = c.currentPosition()
	c.isPlaying = false
	c.updatedAt = c.now()
}

func (c *playbackClock) resume() {
	c.isPlaying = true
	c.updatedAt = c.now()
}

func (c *playbackClock) seek(positionMS int64) int64 {
	c.positionMS = clampPosition(positionMS, c.durationMS)
	c.updatedAt = c.now()

	return c.positionMS
}

func (c *playbackClock) stop() {
	c.positionMS = 0
	c.durationMS = 0
	c.isPlaying = false
	c.updatedAt = c.now()
}

func (c *playbackClock) ended() bool {
	return c.durationMS > 0 && c.currentPosition() >= c.durationMS
}

func clampPosition(positionMS, durationMS int64) int64 {
	if positionMS < 0 {
		return 0
	}
	if durationMS > 0 && positionMS > durationMS {
		return durationMS
	}

	return positionMS
}
