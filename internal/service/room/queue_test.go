package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdering(t *testing.T) {
	q := newQueueManager(100)

	a, err := q.add("Track A", "Artist", "itunes", "m1", 1000)
	require.NoError(t, err)
	b, err := q.add("Track B", "Artist", "itunes", "m1", 2000)
	require.NoError(t, err)
	c, err := q.add("Track C", "Artist", "itunes", "m2", 3000)
	require.NoError(t, err)

	// no votes yet, oldest first
	snapshot := q.snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, a.ID, snapshot[0].ID)
	assert.Equal(t, b.ID, snapshot[1].ID)
	assert.Equal(t, c.ID, snapshot[2].ID)

	_, err = q.vote(c.ID, 2)
	require.NoError(t, err)
	_, err = q.vote(b.ID, 1)
	require.NoError(t, err)

	snapshot = q.snapshot()
	assert.Equal(t, c.ID, snapshot[0].ID)
	assert.Equal(t, b.ID, snapshot[1].ID)
	assert.Equal(t, a.ID, snapshot[2].ID)

	// downvote below zero drops to the back
	_, err = q.vote(c.ID, -5)
	require.NoError(t, err)

	snapshot = q.snapshot()
	assert.Equal(t, b.ID, snapshot[0].ID)
	assert.Equal(t, a.ID, snapshot[1].ID)
	assert.Equal(t, c.ID, snapshot[2].ID)
}

func TestQueueTieBreaks(t *testing.T) {
	q := newQueueManager(100)

	// same votes, same addedAt, lowest id wins
	first, err := q.add("Same Millisecond 1", "Artist", "itunes", "m1", 5000)
	require.NoError(t, err)
	second, err := q.add("Same Millisecond 2", "Artist", "itunes", "m2", 5000)
	require.NoError(t, err)

	snapshot := q.snapshot()
	assert.Equal(t, first.ID, snapshot[0].ID)
	assert.Equal(t, second.ID, snapshot[1].ID)
}

func TestQueueFull(t *testing.T) {
	q := newQueueManager(2)

	_, err := q.add("Track A", "Artist", "itunes", "m1", 1000)
	require.NoError(t, err)
	_, err = q.add("Track B", "Artist", "itunes", "m1", 2000)
	require.NoError(t, err)

	_, err = q.add("Track C", "Artist", "itunes", "m1", 3000)
	assert.ErrorIs(t, err, ErrQueueFull)

	// rejected add must not mutate the queue
	assert.Equal(t, 2, q.length())
	snapshot := q.snapshot()
	assert.Equal(t, "Track A", snapshot[0].Title)
	assert.Equal(t, "Track B", snapshot[1].Title)
}

func TestQueueDuplicateTrack(t *testing.T) {
	q := newQueueManager(100)

	_, err := q.add("Bohemian Rhapsody", "Queen", "itunes", "m1", 1000)
	require.NoError(t, err)

	// case-insensitive on title and artist
	_, err = q.add("bohemian rhapsody", "QUEEN", "itunes", "m2", 2000)
	assert.ErrorIs(t, err, ErrDuplicateTrack)
	assert.Equal(t, 1, q.length())
}

func TestQueueVoteNotFound(t *testing.T) {
	q := newQueueManager(100)

	_, err := q.vote(42, 1)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	err = q.remove(42)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestQueuePopNext(t *testing.T) {
	q := newQueueManager(100)

	_, ok := q.popNext()
	assert.False(t, ok)

	a, err := q.add("Track A", "Artist", "itunes", "m1", 1000)
	require.NoError(t, err)
	b, err := q.add("Track B", "Artist", "itunes", "m1", 2000)
	require.NoError(t, err)

	_, err = q.vote(b.ID, 1)
	require.NoError(t, err)

	popped, ok := q.popNext()
	require.True(t, ok)
	assert.Equal(t, b.ID, popped.ID)

	popped, ok = q.popNext()
	require.True(t, ok)
	assert.Equal(t, a.ID, popped.ID)

	assert.Equal(t, 0, q.length())
}

func TestQueueRestore(t *testing.T) {
	q := newQueueManager(100)

	q.restore([]QueueEntry{
		{ID: 3, Title: "Track C", Artist: "Artist", Votes: 0, AddedAt: 3000},
		{ID: 7, Title: "Track G", Artist: "Artist", Votes: 5, AddedAt: 7000},
	})

	snapshot := q.snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 7, snapshot[0].ID, "restored votes must rank the queue")

	// ids keep increasing past the restored ones
	entry, err := q.add("Track H", "Artist", "itunes", "m1", 8000)
	require.NoError(t, err)
	assert.Equal(t, 8, entry.ID)
}
