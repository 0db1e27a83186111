package room

import (
	"errors"
	"sync"
	"time"

	"mineduel/internal/game"
	"mineduel/internal/logger"
)

// Registry lookup/join errors.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrGameInProgress = errors.New("game already started")
	ErrGameFinished   = errors.New("game already finished")
	ErrAlreadyInRoom  = errors.New("connection already belongs to a room")
)

// Registry is the in-memory table of rooms keyed by code, plus reverse
// indexes from connection id to membership. onChange fires after any
// mutation that alters the room list, outside the registry lock.
type Registry struct {
	mu            sync.RWMutex
	rooms         map[string]*Room
	playerRoom    map[string]string // connID -> code (host or guest seat)
	spectatorRoom map[string]string // connID -> code (public spectators)

	codeLength int
	idleTTL    time.Duration
	onChange   func()
}

func NewRegistry(codeLength int, idleTTL time.Duration, onChange func()) *Registry {
	return &Registry{
		rooms:         make(map[string]*Room),
		playerRoom:    make(map[string]string),
		spectatorRoom: make(map[string]string),
		codeLength:    codeLength,
		idleTTL:       idleTTL,
		onChange:      onChange,
	}
}

func (g *Registry) notify() {
	if g.onChange != nil {
		g.onChange()
	}
}

// CreateRoom makes a new room with connID installed as host. Codes are
// regenerated on the (unlikely) collision.
func (g *Registry) CreateRoom(connID, name string, settings game.Settings) (*Room, error) {
	g.mu.Lock()
	if _, taken := g.playerRoom[connID]; taken {
		g.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}

	code := newCode(g.codeLength)
	for _, exists := g.rooms[code]; exists; _, exists = g.rooms[code] {
		code = newCode(g.codeLength)
	}

	r := newRoom(code, &Player{ConnID: connID, Name: name}, settings)
	g.rooms[code] = r
	g.playerRoom[connID] = code
	g.mu.Unlock()

	logger.Info("room created", "code", code, "host", name)
	g.notify()
	return r, nil
}

// JoinRoom seats connID as guest. Fails when the room is missing, already
// has a guest, or is no longer waiting.
func (g *Registry) JoinRoom(code, connID, name string) (*Room, error) {
	code = NormalizeCode(code)

	g.mu.Lock()
	r, ok := g.rooms[code]
	if !ok {
		g.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if _, taken := g.playerRoom[connID]; taken {
		g.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}

	switch r.State() {
	case game.StatusPlaying:
		g.mu.Unlock()
		return nil, ErrGameInProgress
	case game.StatusFinished:
		g.mu.Unlock()
		return nil, ErrGameFinished
	}
	if r.Guest() != nil {
		g.mu.Unlock()
		return nil, ErrRoomFull
	}

	r.SetGuest(&Player{ConnID: connID, Name: name})
	g.playerRoom[connID] = code
	g.mu.Unlock()

	logger.Info("player joined", "code", code, "guest", name)
	g.notify()
	return r, nil
}

// LeaveRoom removes connID's seat. A host leave deletes the room (spectator
// index entries for it are dropped too); a guest leave frees the seat and
// flips a mid-game room to finished. Returns the affected room and whether
// the leaver was host, or nil when connID held no seat.
func (g *Registry) LeaveRoom(connID string) (*Room, bool) {
	g.mu.Lock()
	code, ok := g.playerRoom[connID]
	if !ok {
		g.mu.Unlock()
		return nil, false
	}
	r := g.rooms[code]
	delete(g.playerRoom, connID)

	role, _ := r.RoleOf(connID)
	wasHost := role == game.RoleHost

	if wasHost {
		delete(g.rooms, code)
		if guest := r.Guest(); guest != nil {
			delete(g.playerRoom, guest.ConnID)
		}
		for specConn, specCode := range g.spectatorRoom {
			if specCode == code {
				delete(g.spectatorRoom, specConn)
			}
		}
	} else {
		r.ClearGuest()
		if r.State() == game.StatusPlaying {
			r.SetState(game.StatusFinished)
		} else {
			r.SetState(game.StatusWaiting)
		}
	}
	g.mu.Unlock()

	logger.Info("player left", "code", code, "wasHost", wasHost)
	g.notify()
	return r, wasHost
}

func (g *Registry) GetByCode(code string) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[NormalizeCode(code)]
}

// GetByConnID resolves the room a connection plays in (seats only, not
// spectating).
func (g *Registry) GetByConnID(connID string) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	code, ok := g.playerRoom[connID]
	if !ok {
		return nil
	}
	return g.rooms[code]
}

// PlayerRole resolves a connection's room and seat.
func (g *Registry) PlayerRole(connID string) (*Room, game.Role, bool) {
	r := g.GetByConnID(connID)
	if r == nil {
		return nil, "", false
	}
	role, ok := r.RoleOf(connID)
	return r, role, ok
}

// Opponent returns the other seat's player relative to connID.
func (g *Registry) Opponent(connID string) (*Player, game.Role, bool) {
	r, role, ok := g.PlayerRole(connID)
	if !ok {
		return nil, "", false
	}
	opp := role.Opponent()
	var p *Player
	if opp == game.RoleHost {
		p = r.Host()
	} else {
		p = r.Guest()
	}
	if p == nil {
		return nil, "", false
	}
	return p, opp, true
}

// AddSpectator joins connID to the room's spectator set.
func (g *Registry) AddSpectator(code, connID string) (*Room, error) {
	code = NormalizeCode(code)

	g.mu.Lock()
	r, ok := g.rooms[code]
	if !ok {
		g.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	g.spectatorRoom[connID] = code
	g.mu.Unlock()

	r.addSpectator(connID)
	return r, nil
}

func (g *Registry) RemoveSpectator(code, connID string) bool {
	code = NormalizeCode(code)

	g.mu.Lock()
	r, ok := g.rooms[code]
	if ok {
		delete(g.spectatorRoom, connID)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}
	return r.removeSpectator(connID)
}

// RemoveSpectatorByConn drops connID from whatever room it was watching and
// returns that room's code.
func (g *Registry) RemoveSpectatorByConn(connID string) (string, bool) {
	g.mu.Lock()
	code, ok := g.spectatorRoom[connID]
	if ok {
		delete(g.spectatorRoom, connID)
	}
	r := g.rooms[code]
	g.mu.Unlock()

	if !ok {
		return "", false
	}
	if r != nil {
		r.removeSpectator(connID)
	}
	return code, true
}

func (g *Registry) SpectatorCount(code string) int {
	if r := g.GetByCode(code); r != nil {
		return r.SpectatorCount()
	}
	return 0
}

// Rooms returns a snapshot of all live rooms.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Codes returns the set of live room codes (journal orphan sweep input).
func (g *Registry) Codes() map[string]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	codes := make(map[string]bool, len(g.rooms))
	for code := range g.rooms {
		codes[code] = true
	}
	return codes
}

// NotifyChanged lets callers that mutate room contents (game start, game
// end) trigger the rooms-changed signal themselves.
func (g *Registry) NotifyChanged() {
	g.notify()
}

// CleanupIdleRooms evicts every room older than the idle TTL that is not
// mid-game. Returns the evicted rooms so the caller can archive journals and
// notify spectators.
func (g *Registry) CleanupIdleRooms() []*Room {
	cutoff := time.Now().Add(-g.idleTTL)

	g.mu.Lock()
	var evicted []*Room
	for code, r := range g.rooms {
		if r.State() == game.StatusPlaying || r.CreatedAt().After(cutoff) {
			continue
		}
		delete(g.rooms, code)
		if host := r.Host(); host != nil {
			delete(g.playerRoom, host.ConnID)
		}
		if guest := r.Guest(); guest != nil {
			delete(g.playerRoom, guest.ConnID)
		}
		for specConn, specCode := range g.spectatorRoom {
			if specCode == code {
				delete(g.spectatorRoom, specConn)
			}
		}
		evicted = append(evicted, r)
	}
	g.mu.Unlock()

	if len(evicted) > 0 {
		logger.Info("idle rooms evicted", "count", len(evicted))
		g.notify()
	}
	return evicted
}
