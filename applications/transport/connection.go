package transport

import (
	"sync"

	"github.com/google/uuid"
)

func newConnectionID() string {
	return uuid.New().String()
}

// connectionArena maps connectionId -> *wsConnection for one WSTransport's
// live WebSocket connections; WSTransport uses its count for the
// MaxConnections check. The broker does not consult it: broker subscriber
// sets hold *Subscription channel handles, which carry no reference to a
// wsConnection, and Publish delivers through those channels rather than
// resolving connection ids through the arena.
type connectionArena struct {
	mu    sync.RWMutex
	conns map[string]*wsConnection
}

func newConnectionArena() *connectionArena {
	return &connectionArena{conns: make(map[string]*wsConnection)}
}

func (a *connectionArena) add(c *wsConnection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conns[c.id] = c
}

func (a *connectionArena) remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, id)
}

func (a *connectionArena) get(id string) (*wsConnection, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.conns[id]
	return c, ok
}

func (a *connectionArena) count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.conns)
}
