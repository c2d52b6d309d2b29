package chat

import (
	"log"

	"prompt-together/internal/room"
)

// Supervisor turns transport-level connection loss into an implicit leave:
// the member is removed, its display name freed, and its typing entry
// cleared, exactly as if it had left on purpose. There is no resume protocol;
// a reconnecting client performs a fresh join and receives the full history.
type Supervisor struct {
	registry *room.Registry
}

// NewSupervisor creates a supervisor over the given registry.
func NewSupervisor(registry *room.Registry) *Supervisor {
	return &Supervisor{registry: registry}
}

// Disconnected is invoked once per connection when its read pump exits.
func (s *Supervisor) Disconnected(c *Client) {
	if c.room == nil {
		return
	}
	log.Printf("[WS] %s: connection lost, leaving room %s as %q", c.connID, c.room.ID(), c.username)
	c.leaveCurrentRoom()
}
