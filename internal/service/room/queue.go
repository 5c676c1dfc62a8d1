package room

import (
	"sort"
	"strings"
)

// queueManager owns the vote-ranked pending tracks of one room. It is
// not safe for concurrent use; the session serializes access to it.
type queueManager struct {
	entries []QueueEntry
	nextID  int
	limit   int
}

func newQueueManager(limit int) *queueManager {
	return &queueManager{
		nextID: 1,
		limit:  limit,
	}
}

// restore replaces the queue contents with persisted entries. nextID is
// bumped past every restored id so ids stay strictly increasing.
func (q *queueManager) restore(entries []QueueEntry) {
	q.entries = append(q.entries[:0], entries...)
	for _, entry := range entries {
		if entry.ID >= q.nextID {
			q.nextID = entry.ID + 1
		}
	}
	q.sort()
}

func (q *queueManager) add(title, artist, providerID, addedByID string, addedAt int64) (QueueEntry, error) {
	if len(q.entries) >= q.limit {
		return QueueEntry{}, ErrQueueFull
	}

	for _, entry := range q.entries {
		if strings.EqualFold(entry.Title, title) && strings.EqualFold(entry.Artist, artist) {
			return QueueEntry{}, ErrDuplicateTrack
		}
	}

	entry := QueueEntry{
		ID:        q.nextID,
		Title:     title,
		Artist:    artist,
		Provider:  providerID,
		Votes:     0,
		AddedByID: addedByID,
		AddedAt:   addedAt,
	}
	q.nextID++
	q.entries = append(q.entries, entry)
	q.sort()

	return entry, nil
}

func (q *queueManager) vote(entryID, delta int) (QueueEntry, error) {
	for i := range q.entries {
		if q.entries[i].ID == entryID {
			q.entries[i].Votes += delta
			entry := q.entries[i]
			q.sort()
			return entry, nil
		}
	}

	return QueueEntry{}, ErrEntryNotFound
}

func (q *queueManager) remove(entryID int) error {
	for i := range q.entries {
		if q.entries[i].ID == entryID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}

	return ErrEntryNotFound
}

func (q *queueManager) peekNext() (QueueEntry, bool) {
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}

	return q.entries[0], true
}

func (q *queueManager) popNext() (QueueEntry, bool) {
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]

	return entry, true
}

func (q *queueManager) snapshot() []QueueEntry {
	snapshot := make([]QueueEntry, len(q.entries))
	copy(snapshot, q.entries)

	return snapshot
}

func (q *queueManager) length() int {
	return len(q.entries)
}

// votes descending, then oldest addedAt, then lowest id. The id
// tie-break makes the order total even for entries added within the
// same millisecond.
func (q *queueManager) sort() {
	sort.SliceStable(q.entries, func(i, j int) bool {
		if q.entries[i].Votes != q.entries[j].Votes {
			return q.entries[i].Votes > q.entries[j].Votes
		}
		if q.entries[i].AddedAt != q.entries[j].AddedAt {
			return q.entries[i].AddedAt < q.entries[j].AddedAt
		}

		return q.entries[i].ID < q.entries[j].ID
	})
}
