package workflow

import "sync"

// stageGuard tracks in-flight generation per (scene, stage). A second request
// for the same pair while the first is running is dropped by the caller, so
// double-click storms cannot double-charge an account.
type stageGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newStageGuard() *stageGuard {
	return &stageGuard{inFlight: make(map[string]struct{})}
}

// tryAcquire claims the key; false means a request for it is already running.
func (g *stageGuard) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *stageGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}
