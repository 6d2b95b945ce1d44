package order

import (
	"sync/atomic"
	"time"
)

// HistoryEntry is one line of an object's audit history.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Seq        uint64    `json:"seq"`
	EventCode  string    `json:"event_code"`
	Supplement string    `json:"supplement,omitempty"`
}

var historySeq atomic.Uint64

// NewHistoryEntry stamps an entry with the current time and the next value of
// the process-wide sequence counter.
func NewHistoryEntry(code, supplement string) HistoryEntry {
	return HistoryEntry{
		Timestamp:  time.Now().UTC(),
		Seq:        historySeq.Add(1),
		EventCode:  code,
		Supplement: supplement,
	}
}

// Before orders entries by timestamp, then sequence number.
func (e HistoryEntry) Before(other HistoryEntry) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.Seq < other.Seq
}

type historyNode struct {
	entry HistoryEntry
	prev  *historyNode
	size  int
}

// History is an append-only, structurally shared log. The zero value is an
// empty history. Appending never touches the receiver, so older values stay
// valid for concurrent readers.
type History struct {
	tail *historyNode
}

func (h History) With(e HistoryEntry) History {
	return History{tail: &historyNode{entry: e, prev: h.tail, size: h.Len() + 1}}
}

func (h History) Len() int {
	if h.tail == nil {
		return 0
	}
	return h.tail.size
}

// Entries returns the log oldest first.
func (h History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, h.Len())
	i := len(out) - 1
	for n := h.tail; n != nil; n = n.prev {
		out[i] = n.entry
		i--
	}
	return out
}

func (h History) Last() (HistoryEntry, bool) {
	if h.tail == nil {
		return HistoryEntry{}, false
	}
	return h.tail.entry, true
}

// RestoreHistory rebuilds a history from persisted entries and moves the
// sequence counter past every restored seq.
func RestoreHistory(entries []HistoryEntry) History {
	var h History
	for _, e := range entries {
		h = h.With(e)
		for {
			cur := historySeq.Load()
			if e.Seq <= cur || historySeq.CompareAndSwap(cur, e.Seq) {
				break
			}
		}
	}
	return h
}
