package engine

import (
	"sync"
	"time"
)

// KeyedGuard is an in-flight marker registry keyed by order id. It keeps
// externally-triggered single-order actions from running twice concurrently.
type KeyedGuard struct {
	mu     sync.Mutex
	active map[string]time.Time
}

func NewKeyedGuard() *KeyedGuard {
	return &KeyedGuard{
		active: make(map[string]time.Time),
	}
}

// Acquire marks the key as in flight. Returns false if it already is.
func (g *KeyedGuard) Acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[key]; ok {
		return false
	}
	g.active[key] = time.Now()
	return true
}

func (g *KeyedGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// TimerRegistry holds named pending timers, one per key. Used for cancellable
// delayed actions such as the admin close grace window.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms fn to fire after delay. Returns false if a timer with that
// name is already pending.
func (r *TimerRegistry) Schedule(name string, delay time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[name]; ok {
		return false
	}
	r.timers[name] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, name)
		r.mu.Unlock()
		fn()
	})
	return true
}

// Stop cancels a pending timer. Returns false if none was pending.
func (r *TimerRegistry) Stop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	timer, ok := r.timers[name]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.timers, name)
	return true
}

// Pending reports whether a timer with the given name is armed.
func (r *TimerRegistry) Pending(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[name]
	return ok
}

// runningFlag makes a polling loop non-reentrant: an overlapping tick is
// skipped entirely instead of queued.
type runningFlag struct {
	mu      sync.Mutex
	running bool
}

// tryStart returns true if the loop body may run. Callers must call done.
func (f *runningFlag) tryStart() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *runningFlag) done() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}
