// Package ratelimit implements the windowed admission control used for
// chat messages and AI queries. Both limiters count events inside a
// trailing one-minute window; a limit of zero or below disables them.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the interval every limiter counts events over.
const Window = time.Minute

// SlidingWindow admits events while fewer than limit timestamps fall
// inside the trailing window. One instance guards one client.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	stamps []time.Time
}

func NewSlidingWindow(limit int) *SlidingWindow {
	return &SlidingWindow{limit: limit}
}

// Allow reports whether an event at now is admitted. On rejection it
// returns the time until the oldest retained event leaves the window,
// floored at one second.
func (w *SlidingWindow) Allow(now time.Time) (bool, time.Duration) {
	if w == nil || w.limit <= 0 {
		return true, 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}

	if len(w.stamps) >= w.limit {
		wait := Window - now.Sub(w.stamps[0])
		if wait < time.Second {
			wait = time.Second
		}
		return false, wait
	}

	w.stamps = append(w.stamps, now)
	return true, 0
}

// KeyedWindow rate-limits per user key with a window that resets once it
// elapses. Entries are keyed by origin address so a reconnect does not
// reset the count; they live for the whole process and are never pruned.
type KeyedWindow struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*windowEntry
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

func NewKeyedWindow(limit int) *KeyedWindow {
	return &KeyedWindow{limit: limit, entries: make(map[string]*windowEntry)}
}

// Limit returns the configured per-window threshold.
func (k *KeyedWindow) Limit() int {
	return k.limit
}

// Allow reports whether the key may perform another event at now, and on
// rejection how long until its window resets.
func (k *KeyedWindow) Allow(key string, now time.Time) (bool, time.Duration) {
	if k == nil || k.limit <= 0 {
		return true, 0
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &windowEntry{windowStart: now}
		k.entries[key] = entry
	}

	if now.Sub(entry.windowStart) >= Window {
		entry.count = 0
		entry.windowStart = now
	}

	if entry.count >= k.limit {
		wait := Window - now.Sub(entry.windowStart)
		if wait < 0 {
			wait = 0
		}
		return false, wait
	}

	entry.count++
	return true, 0
}
