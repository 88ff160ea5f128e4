package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// State gates signal intake: ready flips only after startup recovery has run
// to completion.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	mu       sync.Mutex
	recovery RecoverySnapshot
}

type RecoverySnapshot struct {
	Total        int
	Recovered    int
	Failed       int
	ManualReview []string
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetRecovery(r RecoverySnapshot) {
	s.mu.Lock()
	s.recovery = r
	s.mu.Unlock()
}

func (s *State) Recovery() RecoverySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovery
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
