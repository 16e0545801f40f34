package module

import "sync"

// process-wide port registry filled during composition, before any routes or
// workers run. The loader and reconcile modules land here so the ops surface
// and the CLI entrypoints can pull their ports by name.
var (
	mu  sync.RWMutex
	reg = map[string]any{}
)

// Register stores a port set under a module name, overwriting any previous set
func Register(name string, ports any) {
	mu.Lock()
	reg[name] = ports
	mu.Unlock()
}

// PortsAs fetches a registered port set and asserts it to T.
// ok is false when the name is unknown or the stored set is not a T.
func PortsAs[T any](name string) (T, bool) {
	mu.RLock()
	v, ok := reg[name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// Reset clears the registry so tests can compose from scratch
func Reset() {
	mu.Lock()
	reg = map[string]any{}
	mu.Unlock()
}
