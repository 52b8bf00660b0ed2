// Package spin implements NamedSpin: a process-local registry mapping a
// name to a held/free flag, used to serialize concurrent callers within
// one process onto the same stream direction. It provides no cross-process
// exclusion — the ring's single-writer/single-reader model provides that.
package spin

import (
	"sync"
	"time"
)

const pollInterval = time.Millisecond

var registry = struct {
	mu   sync.Mutex
	held map[string]bool
}{held: make(map[string]bool)}

// Acquire test-and-sets the named entry (creating it if absent). If
// already held, it sleeps pollInterval and retries until timeout elapses,
// at which point it returns false. This is a sleep-based substitute for
// the source's spin-and-retry loop with an identical external contract.
func Acquire(name string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		registry.mu.Lock()
		if !registry.held[name] {
			registry.held[name] = true
			registry.mu.Unlock()
			return true
		}
		registry.mu.Unlock()

		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// Release frees the named entry.
func Release(name string) {
	registry.mu.Lock()
	delete(registry.held, name)
	registry.mu.Unlock()
}

// ReleaseAll clears the entire registry. Intended for test teardown; do
// not rely on it for production shutdown ordering.
func ReleaseAll() {
	registry.mu.Lock()
	registry.held = make(map[string]bool)
	registry.mu.Unlock()
}
