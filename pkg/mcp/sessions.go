package mcp

import "sync"

// WatchRegistry maps simulation session IDs to the MCP client sessions that
// started or drove them. Populated when clients call flowcraft.simulate.
type WatchRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // simulationID → client session IDs
}

// NewWatchRegistry creates a new empty WatchRegistry.
func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{watchers: make(map[string]map[string]struct{})}
}

// Watch adds a client session to a simulation's watchers.
func (r *WatchRegistry) Watch(simulationID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[simulationID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[simulationID] = set
	}
	set[clientID] = struct{}{}
}

// WatchersOf returns the client sessions watching a simulation.
func (r *WatchRegistry) WatchersOf(simulationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.watchers[simulationID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Forget drops every watcher of a simulation.
func (r *WatchRegistry) Forget(simulationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, simulationID)
}

// Remove deletes a client session from every simulation it watches.
// Called when a client disconnects.
func (r *WatchRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sim, set := range r.watchers {
		delete(set, clientID)
		if len(set) == 0 {
			delete(r.watchers, sim)
		}
	}
}
