package infrastructure

import "github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"

// connectionRegistry owns the live clients keyed by connection id. Removal
// cascades into the subscription index so no subscription outlives its client.
// Callers hold Hub.mu.
type connectionRegistry struct {
	clients map[string]*Client
	index   *subscriptionIndex
}

func newConnectionRegistry(index *subscriptionIndex) *connectionRegistry {
	return &connectionRegistry{clients: make(map[string]*Client), index: index}
}

func (r *connectionRegistry) add(c *Client) {
	r.clients[c.id] = c
}

func (r *connectionRegistry) remove(connID string) (*Client, bool) {
	c, ok := r.clients[connID]
	if !ok {
		return nil, false
	}
	delete(r.clients, connID)
	r.index.dropAllForConnection(connID)
	c.topics = make(map[domain.Topic]struct{})
	return c, true
}

func (r *connectionRegistry) get(connID string) (*Client, bool) {
	c, ok := r.clients[connID]
	return c, ok
}

// forEach stops early when fn returns false.
func (r *connectionRegistry) forEach(fn func(*Client) bool) {
	for _, c := range r.clients {
		if !fn(c) {
			return
		}
	}
}

func (r *connectionRegistry) len() int {
	return len(r.clients)
}
