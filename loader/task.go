package loader

import "sync"

// Task holds the ambient loader of one unit of execution. Reflective lookups
// such as the service registry consult it instead of taking a loader argument.
type Task struct {
	mu     sync.Mutex
	loader *Loader
}

func NewTask(l *Loader) *Task {
	return &Task{loader: l}
}

func (t *Task) ContextLoader() *Loader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loader
}

// SetContextLoader installs l and returns the previous loader.
func (t *Task) SetContextLoader(l *Loader) *Loader {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.loader
	t.loader = l
	return prev
}

// With runs fn with l installed as the ambient loader. The previous loader is
// restored when fn returns, fails or panics.
func (t *Task) With(l *Loader, fn func() error) error {
	prev := t.SetContextLoader(l)
	defer t.SetContextLoader(prev)
	return fn()
}
