package room

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the process-wide owner of rooms, keyed by room id. Lookup and
// creation take a short registry lock; all room mutation happens inside each
// room's own event loop, so traffic on one room never blocks another.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	idleTTL time.Duration
}

// NewRegistry creates an empty registry. Rooms that stay empty for longer
// than idleTTL are removed by EvictIdle; a non-positive idleTTL disables
// eviction.
func NewRegistry(idleTTL time.Duration) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		idleTTL: idleTTL,
	}
}

// CreateRoom registers a fresh empty room under a random unguessable id and a
// generated display name.
func (g *Registry) CreateRoom() *Room {
	id := uuid.NewString()
	r := newRoom(id, newRoomName())

	g.mu.Lock()
	g.rooms[id] = r
	total := len(g.rooms)
	g.mu.Unlock()

	log.Printf("[REGISTRY] Created room %s (%s). Total rooms: %d", r.name, id, total)
	return r
}

// Get returns the room for id or ErrRoomNotFound.
func (g *Registry) Get(id string) (*Room, error) {
	g.mu.RLock()
	r, ok := g.rooms[id]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Len returns the number of registered rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// EvictIdle removes rooms that have been empty for longer than the idle TTL
// and stops their event loops. It returns the number of rooms evicted. The
// idle decision and the close happen as one step of the room's event loop, so
// a join never succeeds against a room being evicted: it either lands first
// and keeps the room alive, or fails closed and the client falls back to a
// fresh create/join.
func (g *Registry) EvictIdle() int {
	if g.idleTTL <= 0 {
		return 0
	}

	g.mu.RLock()
	candidates := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		candidates = append(candidates, r)
	}
	g.mu.RUnlock()

	evicted := 0
	for _, r := range candidates {
		if !r.closeIfIdle(g.idleTTL) {
			continue
		}
		g.mu.Lock()
		delete(g.rooms, r.id)
		g.mu.Unlock()
		evicted++
		log.Printf("[REGISTRY] Evicted idle room %s (%s)", r.name, r.id)
	}
	return evicted
}

// Close stops every room's event loop. Used on shutdown and in tests.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, r := range g.rooms {
		r.close()
		delete(g.rooms, id)
	}
}
