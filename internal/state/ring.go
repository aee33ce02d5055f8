package state

// logRing is a fixed-capacity ring of log events, oldest dropped first.
// Not safe for concurrent use; the Broadcaster serializes access.
type logRing struct {
	entries []LogEvent
	size    int
	pos     int
	count   int
}

func newLogRing(size int) *logRing {
	return &logRing{entries: make([]LogEvent, size), size: size}
}

func (r *logRing) add(e LogEvent) {
	r.entries[r.pos] = e
	r.pos = (r.pos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// last returns up to n entries in chronological order. n <= 0 means all.
func (r *logRing) last(n int) []LogEvent {
	if n <= 0 || n > r.count {
		n = r.count
	}
	if n == 0 {
		return nil
	}
	out := make([]LogEvent, n)
	start := (r.pos - n + r.size) % r.size
	for i := 0; i < n; i++ {
		out[i] = r.entries[(start+i)%r.size]
	}
	return out
}
