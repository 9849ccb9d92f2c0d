package agent

import "sync"

// ContextStore carries ambient key-value parameters for one agent,
// like the working directory, without polluting the message log.
type ContextStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewContextStore creates a store seeded with the given working
// directory.
func NewContextStore(workDir string) *ContextStore {
	return &ContextStore{
		values: map[string]string{"working_dir": workDir},
	}
}

// Get returns the value for key and whether it exists.
func (c *ContextStore) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value under key.
func (c *ContextStore) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Delete removes a key. Removing an absent key is a no-op.
func (c *ContextStore) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// All returns a copy of every stored pair.
func (c *ContextStore) All() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Clear removes everything except the working directory seed.
func (c *ContextStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	workDir := c.values["working_dir"]
	c.values = map[string]string{"working_dir": workDir}
}
