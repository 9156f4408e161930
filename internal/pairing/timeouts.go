package pairing

import "time"

// timeoutTracker holds one armed expiry per pooled participant. It is owned
// by the engine loop; only the timer callbacks run elsewhere, and they do
// nothing but hand (id, gen) back to the loop.
type timeoutTracker struct {
	after   time.Duration
	fire    func(id string, gen uint64)
	gen     uint64
	entries map[string]timeoutEntry
}

type timeoutEntry struct {
	since time.Time
	gen   uint64
	timer *time.Timer
}

func newTimeoutTracker(after time.Duration, fire func(id string, gen uint64)) *timeoutTracker {
	return &timeoutTracker{
		after:   after,
		fire:    fire,
		entries: make(map[string]timeoutEntry),
	}
}

// arm starts a fresh expiry for id, replacing any earlier one.
func (t *timeoutTracker) arm(id string, now time.Time) {
	t.cancel(id)
	t.gen++
	gen := t.gen
	t.entries[id] = timeoutEntry{
		since: now,
		gen:   gen,
		timer: time.AfterFunc(t.after, func() { t.fire(id, gen) }),
	}
}

// cancel stops and forgets id's expiry. A callback already in flight is
// ignored later because its generation no longer matches.
func (t *timeoutTracker) cancel(id string) {
	if e, ok := t.entries[id]; ok {
		e.timer.Stop()
		delete(t.entries, id)
	}
}

// since returns when id's current expiry was armed.
func (t *timeoutTracker) since(id string) (time.Time, bool) {
	e, ok := t.entries[id]
	return e.since, ok
}

// expire consumes the entry for a fired timer. It reports false for stale
// generations.
func (t *timeoutTracker) expire(id string, gen uint64) (time.Time, bool) {
	e, ok := t.entries[id]
	if !ok || e.gen != gen {
		return time.Time{}, false
	}
	delete(t.entries, id)
	return e.since, true
}

func (t *timeoutTracker) size() int {
	return len(t.entries)
}

func (t *timeoutTracker) stopAll() {
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
}
