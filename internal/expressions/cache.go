package expressions

import "sync"

// programCache memoizes compiled programs by source text. Safe for
// concurrent use.
type programCache[P any] struct {
	mu    sync.RWMutex
	items map[string]P
}

func newProgramCache[P any]() *programCache[P] {
	return &programCache[P]{items: make(map[string]P)}
}

// getOrCompile returns the cached program for key or compiles and stores it.
// Failed compilations are not cached.
func (c *programCache[P]) getOrCompile(key string, compile func() (P, error)) (P, error) {
	c.mu.RLock()
	if p, ok := c.items[key]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if p, ok := c.items[key]; ok {
		return p, nil
	}

	p, err := compile()
	if err != nil {
		var zero P
		return zero, err
	}
	c.items[key] = p
	return p, nil
}

func (c *programCache[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
