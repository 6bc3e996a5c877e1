package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"classgate/internal/domain"
)

type managed struct {
	membership *Membership
	cancel     context.CancelFunc
}

// Manager tracks the live membership per room for one client process and
// owns their teardown: a binding is released on explicit leave, on
// session end, or on process shutdown, whichever happens first.
type Manager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]*managed
}

func NewManager() *Manager {
	return &Manager{rooms: make(map[domain.RoomName]*managed)}
}

// Bind registers a membership for a room. Rebinding a room releases the
// previous membership first.
func (g *Manager) Bind(ctx context.Context, room domain.RoomName, m *Membership, cancel context.CancelFunc) {
	g.mu.Lock()
	prev := g.rooms[room]
	g.rooms[room] = &managed{membership: m, cancel: cancel}
	g.mu.Unlock()

	if prev != nil {
		g.release(ctx, prev)
		log.Info().Str("module", "session.manager").Str("room", string(room)).Msg("replaced membership")
	}
}

func (g *Manager) Get(room domain.RoomName) (*Membership, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.rooms[room]; ok {
		return e.membership, true
	}
	return nil, false
}

// Release tears one room's membership down. Releasing an unbound room is
// a no-op.
func (g *Manager) Release(ctx context.Context, room domain.RoomName) {
	g.mu.Lock()
	e, ok := g.rooms[room]
	delete(g.rooms, room)
	g.mu.Unlock()
	if !ok {
		return
	}
	g.release(ctx, e)
	log.Info().Str("module", "session.manager").Str("room", string(room)).Msg("released membership")
}

// Shutdown releases every binding; used on client teardown.
func (g *Manager) Shutdown(ctx context.Context) {
	g.mu.Lock()
	entries := g.rooms
	g.rooms = make(map[domain.RoomName]*managed)
	g.mu.Unlock()

	for room, e := range entries {
		g.release(ctx, e)
		log.Info().Str("module", "session.manager").Str("room", string(room)).Msg("released on shutdown")
	}
}

func (g *Manager) release(ctx context.Context, e *managed) {
	if e.cancel != nil {
		e.cancel()
	}
	e.membership.End(ctx)
}
