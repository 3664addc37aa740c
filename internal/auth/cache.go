package auth

import "sync"

// RoleCache remembers which role the user picked and which session/quiz they
// are attached to. It is an explicitly passed, lifetime-scoped object owned
// by the caller — there is no process-global cache.
type RoleCache struct {
	mu        sync.RWMutex
	role      string
	sessionID string
	quizID    string
}

func NewRoleCache() *RoleCache {
	return &RoleCache{}
}

func (c *RoleCache) SetRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

func (c *RoleCache) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// SetSession records the session (and optionally quiz) the user joined.
func (c *RoleCache) SetSession(sessionID, quizID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.quizID = quizID
}

func (c *RoleCache) Session() (sessionID, quizID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID, c.quizID
}

// Clear drops everything, e.g. on sign-out.
func (c *RoleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = ""
	c.sessionID = ""
	c.quizID = ""
}
