package copylock

import "sync"

type stats struct {
	mu    sync.Mutex
	stale int
}

func report(s stats) int { // want "report passes lock by value: copylock.stats contains sync.Mutex"
	return s.stale
}

func snapshot(s *stats) int {
	copied := *s // want "assignment copies lock value to copied: copylock.stats contains sync.Mutex"
	return copied.stale
}

func increment(s *stats) { // OK - passed by pointer
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale++
}
