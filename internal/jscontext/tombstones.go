package jscontext

import "time"

// tombstoneList remembers recently disposed payload identifiers so Retrieve
// can distinguish "expired" from "never existed". It is a count-bounded LRU:
// a doubly-linked list with dummy head and tail plus a map for O(1) lookup.
// The oldest tombstones fall off once the bound is reached, at which point
// very late lookups degrade to "unknown"; the bound trades memory for how
// long that distinction stays accurate.
//
// Callers synchronize access; the registry holds its mutex around every
// method.
type tombstoneList struct {
	capacity int
	entries  map[string]*tombstone
	head     *tombstone
	tail     *tombstone
}

type tombstone struct {
	id         string
	disposedAt time.Time
	prev       *tombstone
	next       *tombstone
}

func newTombstoneList(capacity int) *tombstoneList {
	l := &tombstoneList{
		capacity: capacity,
		entries:  make(map[string]*tombstone),
		head:     &tombstone{},
		tail:     &tombstone{},
	}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

// Add records an identifier as disposed, refreshing it if already present.
func (l *tombstoneList) Add(id string) {
	if l.capacity <= 0 {
		return
	}

	if existing, ok := l.entries[id]; ok {
		existing.disposedAt = time.Now()
		l.moveToFront(existing)
		return
	}

	for len(l.entries) >= l.capacity {
		l.evictOldest()
	}

	entry := &tombstone{id: id, disposedAt: time.Now()}
	l.entries[id] = entry
	l.addToFront(entry)
}

// Contains reports whether an identifier was disposed recently enough to
// still be remembered.
func (l *tombstoneList) Contains(id string) bool {
	_, ok := l.entries[id]
	return ok
}

// Len returns the number of remembered tombstones.
func (l *tombstoneList) Len() int {
	return len(l.entries)
}

func (l *tombstoneList) addToFront(entry *tombstone) {
	entry.prev = l.head
	entry.next = l.head.next
	l.head.next.prev = entry
	l.head.next = entry
}

func (l *tombstoneList) removeFromList(entry *tombstone) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	entry.prev = nil
	entry.next = nil
}

func (l *tombstoneList) moveToFront(entry *tombstone) {
	l.removeFromList(entry)
	l.addToFront(entry)
}

func (l *tombstoneList) evictOldest() {
	oldest := l.tail.prev
	if oldest == l.head {
		return
	}
	l.removeFromList(oldest)
	delete(l.entries, oldest.id)
}
