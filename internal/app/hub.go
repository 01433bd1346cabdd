package app

import (
	"sync"

	"quiz-progression-service/internal/domain"
)

// LeaderboardHub fans reconciled leaderboard snapshots out to in-process
// watchers (the websocket transport). Slow watchers have their stale snapshot
// replaced rather than blocking the broadcast.
type LeaderboardHub struct {
	mu       sync.RWMutex
	watchers map[string]map[chan domain.LeaderboardSnapshot]struct{}
}

func NewLeaderboardHub() *LeaderboardHub {
	return &LeaderboardHub{
		watchers: make(map[string]map[chan domain.LeaderboardSnapshot]struct{}),
	}
}

// Subscribe registers a watcher for one quiz. The caller must invoke the
// returned cancel function to avoid leaks.
func (h *LeaderboardHub) Subscribe(quizID string) (<-chan domain.LeaderboardSnapshot, func()) {
	ch := make(chan domain.LeaderboardSnapshot, 8)

	h.mu.Lock()
	set, ok := h.watchers[quizID]
	if !ok {
		set = make(map[chan domain.LeaderboardSnapshot]struct{})
		h.watchers[quizID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.watchers[quizID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.watchers, quizID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// HasWatchers reports whether anyone is listening for the quiz.
func (h *LeaderboardHub) HasWatchers(quizID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[quizID]) > 0
}

// Broadcast delivers a snapshot to every watcher of its quiz.
func (h *LeaderboardHub) Broadcast(snapshot domain.LeaderboardSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.watchers[snapshot.QuizID] {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot so a slow watcher never blocks the rest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
