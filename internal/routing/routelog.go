package routing

import "sync"

// routeLog is a fixed-capacity ring of recent rule matches. Once the ring
// fills up, new entries overwrite the oldest ones.
type routeLog struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

func newRouteLog(capacity int) *routeLog {
	if capacity <= 0 {
		capacity = 1
	}

	return &routeLog{entries: make([]LogEntry, capacity)}
}

func (r *routeLog) add(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = entry
	r.next++

	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns the retained entries, newest first.
func (r *routeLog) snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}

	out := make([]LogEntry, 0, size)

	for i := 1; i <= size; i++ {
		idx := r.next - i
		if idx < 0 {
			idx += len(r.entries)
		}

		out = append(out, r.entries[idx])
	}

	return out
}

func (r *routeLog) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		return len(r.entries)
	}

	return r.next
}
