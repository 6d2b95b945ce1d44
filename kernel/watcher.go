package kernel

import "sync"

// dependencyWatcher tracks which pending orders wait on which dependency.
// Waiters register before they evaluate their dependencies, so a dependency
// reaching a final state in between is never missed.
type dependencyWatcher struct {
	mu      sync.Mutex
	waiting map[string]map[string]struct{} // dependency -> waiting orders
}

func newDependencyWatcher() *dependencyWatcher {
	return &dependencyWatcher{waiting: make(map[string]map[string]struct{})}
}

func (w *dependencyWatcher) register(waiter string, deps []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range deps {
		set, ok := w.waiting[d]
		if !ok {
			set = make(map[string]struct{})
			w.waiting[d] = set
		}
		set[waiter] = struct{}{}
	}
}

// release returns and forgets every order waiting on dep.
func (w *dependencyWatcher) release(dep string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	set := w.waiting[dep]
	delete(w.waiting, dep)
	out := make([]string, 0, len(set))
	for waiter := range set {
		out = append(out, waiter)
	}
	return out
}

func (w *dependencyWatcher) forget(waiter string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dep, set := range w.waiting {
		delete(set, waiter)
		if len(set) == 0 {
			delete(w.waiting, dep)
		}
	}
}

func (w *dependencyWatcher) waiters(dep string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiting[dep])
}
