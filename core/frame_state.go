package core

import (
	"sync"
	"sync/atomic"
)

const (
	defaultFullFPS = 60
	defaultIdleFPS = 1

	// FullFramerate asks a FramerateLockProvider for its maximum frame rate.
	FullFramerate = 0
)

// FramerateLock keeps the frame loop from throttling down while held.
// Release is idempotent.
type FramerateLock interface {
	Release()
}

// FramerateLockProvider hands out framerate locks.
type FramerateLockProvider interface {
	// AcquireFramerateLock holds the frame rate at or above minFPS until the
	// returned lock is released. FullFramerate requests the maximum rate.
	AcquireFramerateLock(minFPS int, reason string) FramerateLock
}

// FrameState tracks outstanding framerate locks and derives the frame rate
// the loop should run at. It is safe for concurrent use.
type FrameState struct {
	fullFPS int
	idleFPS int

	mu     sync.Mutex
	nextID uint64
	locks  map[uint64]frameLockEntry
}

type frameLockEntry struct {
	fps    int
	reason string
}

var _ FramerateLockProvider = (*FrameState)(nil)

// NewFrameState creates a FrameState running at fullFPS while locks are held
// and at idleFPS otherwise. Non-positive values select the defaults (60 and 1).
func NewFrameState(fullFPS, idleFPS int) *FrameState {
	if fullFPS <= 0 {
		fullFPS = defaultFullFPS
	}
	if idleFPS <= 0 {
		idleFPS = defaultIdleFPS
	}
	if idleFPS > fullFPS {
		idleFPS = fullFPS
	}
	return &FrameState{
		fullFPS: fullFPS,
		idleFPS: idleFPS,
		locks:   make(map[uint64]frameLockEntry),
	}
}

// AcquireFramerateLock implements FramerateLockProvider.
func (s *FrameState) AcquireFramerateLock(minFPS int, reason string) FramerateLock {
	if minFPS <= FullFramerate || minFPS > s.fullFPS {
		minFPS = s.fullFPS
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.locks[id] = frameLockEntry{fps: minFPS, reason: reason}
	return &frameStateLock{state: s, id: id}
}

// TargetFPS returns the highest frame rate requested by a held lock, or the
// idle rate when no lock is held.
func (s *FrameState) TargetFPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fps := s.idleFPS
	for _, l := range s.locks {
		if l.fps > fps {
			fps = l.fps
		}
	}
	return fps
}

// LocksHeld returns the number of outstanding locks.
func (s *FrameState) LocksHeld() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// Reasons returns the reasons of the outstanding locks, in no particular order.
func (s *FrameState) Reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.locks))
	for _, l := range s.locks {
		out = append(out, l.reason)
	}
	return out
}

// FullFPS returns the frame rate used while any lock is held.
func (s *FrameState) FullFPS() int { return s.fullFPS }

// IdleFPS returns the frame rate used when no lock is held.
func (s *FrameState) IdleFPS() int { return s.idleFPS }

func (s *FrameState) release(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id)
}

type frameStateLock struct {
	state    *FrameState
	id       uint64
	released atomic.Bool
}

func (l *frameStateLock) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.state.release(l.id)
	}
}
