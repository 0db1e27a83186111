package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mineduel/internal/config"
	"mineduel/internal/game"
	"mineduel/internal/journal"
	"mineduel/internal/logger"
	"mineduel/internal/room"
)

const (
	chatCooldown  = 2 * time.Second
	sweepInterval = 5 * time.Minute
)

// Hub is the event dispatcher: the only component that knows about the
// transport. It routes player and admin intents into the registry and the
// engines, and fans authoritative results out to the player, public
// spectator and admin spectator audiences.
type Hub struct {
	cfg      *config.Config
	registry *room.Registry
	journal  *journal.Store

	mu            sync.Mutex
	clients       map[string]*Client
	adminSubs     map[string]*Client
	adminSpectate map[string]string // admin connID -> room code
	spectating    map[string]string // player-channel connID -> room code
	chatLast      map[string]time.Time
	roomLocks     map[string]*sync.Mutex

	connSeq atomic.Int64
	chatSeq atomic.Int64
}

func NewHub(cfg *config.Config, store *journal.Store) *Hub {
	h := &Hub{
		cfg:           cfg,
		journal:       store,
		clients:       make(map[string]*Client),
		adminSubs:     make(map[string]*Client),
		adminSpectate: make(map[string]string),
		spectating:    make(map[string]string),
		chatLast:      make(map[string]time.Time),
		roomLocks:     make(map[string]*sync.Mutex),
	}
	h.registry = room.NewRegistry(cfg.RoomCodeLength, cfg.RoomIdleTimeout, h.pushAdminStats)
	return h
}

func (h *Hub) Registry() *room.Registry { return h.registry }

func (h *Hub) nextConnID() string {
	return fmt.Sprintf("conn-%d", h.connSeq.Add(1))
}

// Register tracks a freshly upgraded connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	connectedClients.Inc()
}

// HandleMessage decodes the envelope and dispatches on the type
// discriminator. Unknown types are reported back, never fatal.
func (h *Hub) HandleMessage(c *Client, raw []byte) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, EvError, "malformed message")
		return
	}

	if c.IsAdmin {
		h.handleAdminMessage(c, env.Type, env.Payload)
		return
	}

	switch env.Type {
	case MsgCreateRoom:
		var p CreateRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, EvError, "malformed payload")
			return
		}
		h.handleCreateRoom(c, p)
	case MsgJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, EvJoinError, "malformed payload")
			return
		}
		h.handleJoinRoom(c, p)
	case MsgRevealTile:
		var p RevealTilePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, EvError, "malformed payload")
			return
		}
		h.handleRevealTile(c, p)
	case MsgPassTurn:
		h.handlePassTurn(c)
	case MsgRequestRestart:
		h.handleRequestRestart(c)
	case MsgAcceptRestart:
		h.handleAcceptRestart(c)
	case MsgPublicSpectate:
		var p SpectatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, EvSpectateError, "malformed payload")
			return
		}
		h.handlePublicSpectate(c, p)
	case MsgLeaveSpectate:
		h.handleLeaveSpectate(c)
	case MsgSendDanmaku:
		var p DanmakuPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		h.handleDanmaku(c, p)
	case MsgUpdatePlayerName:
		var p UpdateNamePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, EvError, "malformed payload")
			return
		}
		h.handleUpdateName(c, p)
	default:
		h.sendError(c, EvError, "unknown event: "+env.Type)
	}
}

// lockRoom returns the dispatch lock for a room. Every engine transition is
// held together with the fan-out and journal write it produces, so all
// audiences observe transitions in one total order and the journal records
// moves in broadcast order.
func (h *Hub) lockRoom(code string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.roomLocks[code]
	if !ok {
		l = &sync.Mutex{}
		h.roomLocks[code] = l
	}
	return l
}

func (h *Hub) dropRoomLock(code string) {
	h.mu.Lock()
	delete(h.roomLocks, code)
	h.mu.Unlock()
}

// fan-out helpers

func (h *Hub) send(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("ws marshal failed", "type", msg.Type, "err", err)
		return
	}
	c.enqueue(data)
}

func (h *Hub) sendError(c *Client, event, text string) {
	h.send(c, Message{Type: event, Payload: ErrorPayload{Error: text}})
}

func (h *Hub) sendToConn(connID string, msg Message) {
	if connID == "" {
		return
	}
	h.mu.Lock()
	c := h.clients[connID]
	h.mu.Unlock()
	if c != nil {
		h.send(c, msg)
	}
}

func (h *Hub) sendToConns(connIDs []string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("ws marshal failed", "type", msg.Type, "err", err)
		return
	}
	h.mu.Lock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.enqueue(data)
	}
}

func (h *Hub) playerConns(r *room.Room) []string {
	var ids []string
	if host := r.Host(); host != nil {
		ids = append(ids, host.ConnID)
	}
	if guest := r.Guest(); guest != nil {
		ids = append(ids, guest.ConnID)
	}
	return ids
}

// spectatorConns is the public spectator set plus any admin spectators
// watching the same room.
func (h *Hub) spectatorConns(r *room.Room) []string {
	ids := r.Spectators()
	h.mu.Lock()
	for connID, code := range h.adminSpectate {
		if code == r.Code() {
			ids = append(ids, connID)
		}
	}
	h.mu.Unlock()
	return ids
}

func (h *Hub) broadcastPlayers(r *room.Room, msg Message) {
	h.sendToConns(h.playerConns(r), msg)
}

func (h *Hub) broadcastSpectators(r *room.Room, msg Message) {
	h.sendToConns(h.spectatorConns(r), msg)
}

// broadcastRoom reaches all three audiences with the same payload.
func (h *Hub) broadcastRoom(r *room.Room, msg Message) {
	h.sendToConns(append(h.playerConns(r), h.spectatorConns(r)...), msg)
}

// allowChat enforces the per-connection chat cooldown. Over-rate messages
// are silently dropped.
func (h *Hub) allowChat(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	if last, ok := h.chatLast[connID]; ok && now.Sub(last) < chatCooldown {
		return false
	}
	h.chatLast[connID] = now
	return true
}

// OnDisconnect tears down whatever membership the connection held: admin
// subscriptions, spectator membership, or a player seat (mid-game seat loss
// is a forfeit).
func (h *Hub) OnDisconnect(c *Client) {
	connectedClients.Dec()

	h.mu.Lock()
	delete(h.clients, c.ID)
	delete(h.chatLast, c.ID)
	delete(h.adminSubs, c.ID)
	delete(h.adminSpectate, c.ID)
	wasSpectating := h.spectating[c.ID] != ""
	delete(h.spectating, c.ID)
	h.mu.Unlock()

	if c.IsAdmin {
		return
	}

	if wasSpectating {
		if code, ok := h.registry.RemoveSpectatorByConn(c.ID); ok {
			if r := h.registry.GetByCode(code); r != nil {
				h.broadcastRoom(r, Message{Type: EvSpectatorCountUpdate, Payload: map[string]int{"count": r.SpectatorCount()}})
			}
		}
		return
	}

	r := h.registry.GetByConnID(c.ID)
	if r == nil {
		return
	}
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	role, _ := r.RoleOf(c.ID)
	eng := r.Engine()
	wasPlaying := eng != nil && eng.Status() == game.StatusPlaying

	_, wasHost := h.registry.LeaveRoom(c.ID)
	code := r.Code()

	if wasPlaying {
		winner := role.Opponent()
		eng.Stop()
		over := GameOverPayload{
			Winner:   winner,
			Loser:    role,
			Reason:   game.ReasonOpponentDisconnected,
			Scores:   eng.Scores(),
			AllMines: eng.AllMines(),
			// Forfeits never count toward match stats.
			MatchStats: r.Stats(),
		}
		h.broadcastPlayers(r, Message{Type: EvGameOver, Payload: over})
		if !wasHost {
			h.broadcastSpectators(r, Message{Type: EvGameOver, Payload: over})
		}
		h.journal.EndGame(code, journal.ResultRecord{
			Winner: winner, Loser: role,
			Reason: game.ReasonOpponentDisconnected,
			Scores: eng.Scores(),
		})
		r.SetEngine(nil)
		gamesFinished.WithLabelValues(game.ReasonOpponentDisconnected).Inc()
	}

	if wasHost {
		closed := Message{Type: EvRoomClosed, Payload: map[string]string{
			"reason":  "host_left",
			"message": "The host has left the room",
		}}
		if guest := r.Guest(); guest != nil {
			h.sendToConn(guest.ConnID, closed)
		}
		h.broadcastSpectators(r, closed)
		h.journal.Archive(code, "host_left")
		defer h.dropRoomLock(code)
	} else {
		h.journal.AppendEvent(code, "guest_left", "")
	}
	h.registry.NotifyChanged()
}

// StartSweep evicts idle rooms every five minutes until stop closes.
func (h *Hub) StartSweep(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, r := range h.registry.CleanupIdleRooms() {
					lock := h.lockRoom(r.Code())
					lock.Lock()
					h.broadcastRoom(r, Message{Type: EvRoomClosed, Payload: map[string]string{
						"reason":  "idle_timeout",
						"message": "Room closed after being idle",
					}})
					h.journal.Archive(r.Code(), "idle_timeout")
					lock.Unlock()
					h.dropRoomLock(r.Code())
				}
			}
		}
	}()
}
