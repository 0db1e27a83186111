package room

import (
	"sync"
	"time"

	"mineduel/internal/game"
)

const chatHistoryLimit = 100

// Player is one of the two seats in a room.
type Player struct {
	ConnID string `json:"-"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// MatchStats counts natural game ends across a room's lifetime. Disconnect
// forfeits do not touch it.
type MatchStats struct {
	GamesPlayed int `json:"gamesPlayed"`
	HostWins    int `json:"hostWins"`
	GuestWins   int `json:"guestWins"`
}

// ChatMessage is one danmaku entry, kept in memory for late-joining
// spectators and appended to the room journal.
type ChatMessage struct {
	ID        int64  `json:"id"`
	Nickname  string `json:"nickname"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	IsPlayer  bool   `json:"isPlayer"`
}

// Room is one match: two player seats, an optional engine, and a spectator
// set. All access goes through methods; the registry never reaches into a
// room without its lock.
type Room struct {
	code string

	mu            sync.Mutex
	host          *Player
	guest         *Player
	state         game.Status
	eng           *game.Engine
	settings      game.Settings
	stats         MatchStats
	nextStarter   game.Role
	spectators    map[string]struct{}
	messages      []ChatMessage
	createdAt     time.Time
	gameStartedAt time.Time
}

func newRoom(code string, host *Player, settings game.Settings) *Room {
	return &Room{
		code:        code,
		host:        host,
		state:       game.StatusWaiting,
		settings:    settings,
		nextStarter: game.RoleHost,
		spectators:  make(map[string]struct{}),
		createdAt:   time.Now(),
	}
}

func (r *Room) Code() string { return r.code }

func (r *Room) Host() *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host == nil {
		return nil
	}
	h := *r.host
	return &h
}

func (r *Room) Guest() *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.guest == nil {
		return nil
	}
	g := *r.guest
	return &g
}

func (r *Room) SetGuest(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guest = p
}

func (r *Room) ClearGuest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guest = nil
}

// RoleOf reports which seat connID occupies, if any.
func (r *Room) RoleOf(connID string) (game.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.host != nil && r.host.ConnID == connID {
		return game.RoleHost, true
	}
	if r.guest != nil && r.guest.ConnID == connID {
		return game.RoleGuest, true
	}
	return "", false
}

// PlayerName returns the display name for a seat, empty when unoccupied.
func (r *Room) PlayerName(role game.Role) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case role == game.RoleHost && r.host != nil:
		return r.host.Name
	case role == game.RoleGuest && r.guest != nil:
		return r.guest.Name
	}
	return ""
}

// SetPlayerName renames a seat. Reports whether the seat was occupied.
func (r *Room) SetPlayerName(role game.Role, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case role == game.RoleHost && r.host != nil:
		r.host.Name = name
		return true
	case role == game.RoleGuest && r.guest != nil:
		r.guest.Name = name
		return true
	}
	return false
}

// ConnID returns the connection occupying a seat, empty when unoccupied.
func (r *Room) ConnID(role game.Role) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case role == game.RoleHost && r.host != nil:
		return r.host.ConnID
	case role == game.RoleGuest && r.guest != nil:
		return r.guest.ConnID
	}
	return ""
}

func (r *Room) State() game.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) SetState(s game.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Room) Engine() *game.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng
}

// SetEngine installs a new engine, marks the room playing, and stamps the
// game start time. Passing nil detaches the engine.
func (r *Room) SetEngine(e *game.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eng = e
	if e != nil {
		r.state = game.StatusPlaying
		r.gameStartedAt = time.Now()
	}
}

func (r *Room) Settings() game.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

func (r *Room) Stats() MatchStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// RecordNaturalResult updates match stats for a game that ended on its own
// terms (mine hit, full clear, timeout forfeit) and sets the loser as the
// next game's starter.
func (r *Room) RecordNaturalResult(winner game.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.GamesPlayed++
	if winner == game.RoleHost {
		r.stats.HostWins++
	} else {
		r.stats.GuestWins++
	}
	r.nextStarter = winner.Opponent()
}

func (r *Room) NextStarter() game.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextStarter
}

func (r *Room) addSpectator(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spectators[connID] = struct{}{}
}

func (r *Room) removeSpectator(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spectators[connID]; !ok {
		return false
	}
	delete(r.spectators, connID)
	return true
}

func (r *Room) SpectatorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spectators)
}

func (r *Room) Spectators() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.spectators))
	for id := range r.spectators {
		ids = append(ids, id)
	}
	return ids
}

// AppendMessage records a chat message, keeping the newest chatHistoryLimit.
func (r *Room) AppendMessage(m ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	if len(r.messages) > chatHistoryLimit {
		r.messages = r.messages[len(r.messages)-chatHistoryLimit:]
	}
}

func (r *Room) MessageHistory() []ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]ChatMessage, len(r.messages))
	copy(history, r.messages)
	return history
}

func (r *Room) CreatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createdAt
}

func (r *Room) GameStartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameStartedAt
}
