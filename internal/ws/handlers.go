package ws

import (
	"errors"
	"time"

	"mineduel/internal/game"
	"mineduel/internal/journal"
	"mineduel/internal/logger"
	"mineduel/internal/room"
)

// clampSettings fills a (possibly partial) settings payload with configured
// defaults and bounds every field to a sane range.
func (h *Hub) clampSettings(p *game.Settings) game.Settings {
	s := game.Settings{
		GridSize:         h.cfg.GridSize,
		MinesCount:       h.cfg.DefaultMinesCount,
		TurnTimeLimit:    h.cfg.TurnTimeLimit,
		MinRevealsToPass: h.cfg.MinRevealsToPass,
	}
	if p != nil {
		if p.GridSize != 0 {
			s.GridSize = p.GridSize
		}
		if p.MinesCount != 0 {
			s.MinesCount = p.MinesCount
		}
		if p.TurnTimeLimit != 0 {
			s.TurnTimeLimit = p.TurnTimeLimit
		}
		if p.MinRevealsToPass != 0 {
			s.MinRevealsToPass = p.MinRevealsToPass
		}
	}
	s.GridSize = clamp(s.GridSize, 5, 20)
	// leave room for the 3x3 safe zone around the first click
	s.MinesCount = clamp(s.MinesCount, 1, s.GridSize*s.GridSize-9)
	s.TurnTimeLimit = clamp(s.TurnTimeLimit, 5, 300)
	s.MinRevealsToPass = clamp(s.MinRevealsToPass, 1, 10)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (h *Hub) handleCreateRoom(c *Client, p CreateRoomPayload) {
	name := normalizeName(p.PlayerName)
	if name == "" {
		h.sendError(c, EvError, "player name is required")
		return
	}
	h.handleLeaveSpectate(c) // a connection holds one membership at a time
	settings := h.clampSettings(p.Settings)

	r, err := h.registry.CreateRoom(c.ID, name, settings)
	if err != nil {
		h.sendError(c, EvError, err.Error())
		return
	}
	h.journal.Create(r.Code(), name, settings)

	h.send(c, Message{Type: EvRoomCreated, Payload: map[string]any{
		"roomCode":   r.Code(),
		"playerName": name,
		"role":       game.RoleHost,
		"settings":   settings,
	}})
}

func (h *Hub) handleJoinRoom(c *Client, p JoinRoomPayload) {
	name := normalizeName(p.PlayerName)
	if name == "" {
		h.sendError(c, EvJoinError, "player name is required")
		return
	}
	h.handleLeaveSpectate(c)

	r, err := h.registry.JoinRoom(p.RoomCode, c.ID, name)
	if err != nil {
		// A room mid-game or just finished is still watchable.
		if errors.Is(err, room.ErrGameInProgress) || errors.Is(err, room.ErrGameFinished) {
			h.send(c, Message{Type: EvRedirectToSpectate, Payload: map[string]string{
				"roomCode": room.NormalizeCode(p.RoomCode),
				"message":  err.Error(),
			}})
			return
		}
		h.sendError(c, EvJoinError, err.Error())
		return
	}
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	h.journal.SetGuestName(r.Code(), name)

	h.send(c, Message{Type: EvRoomJoined, Payload: map[string]any{
		"roomCode":   r.Code(),
		"playerName": name,
		"role":       game.RoleGuest,
		"hostName":   r.PlayerName(game.RoleHost),
		"settings":   r.Settings(),
		"matchStats": r.Stats(),
	}})
	h.sendToConn(r.ConnID(game.RoleHost), Message{Type: EvPlayerJoined, Payload: map[string]any{
		"opponent": name,
		"role":     game.RoleGuest,
	}})

	h.startGame(r)
}

// startGame builds a fresh engine for the room and announces it. Players get
// the masked grid; spectators get the god view.
func (h *Hub) startGame(r *room.Room) {
	settings := r.Settings()
	starting := r.NextStarter()

	eng := game.NewEngine(settings, starting,
		func(remaining int) {
			h.broadcastRoom(r, Message{Type: EvTimerUpdate, Payload: map[string]int{
				"timeRemaining": remaining,
			}})
		},
		func(gen uint64) {
			h.handleEngineTimeout(r, gen)
		})
	r.SetEngine(eng)
	h.journal.StartGame(r.Code(), starting, settings)

	base := GameStartPayload{
		GridSize:      settings.GridSize,
		MinesCount:    settings.MinesCount,
		CurrentPlayer: starting,
		TurnTimeLimit: settings.TurnTimeLimit,
		TimeRemaining: nil, // countdown starts on the first reveal
		IsFirstMove:   true,
		Host:          PlayerInfo{Name: r.PlayerName(game.RoleHost)},
		Guest:         PlayerInfo{Name: r.PlayerName(game.RoleGuest)},
		MatchStats:    r.Stats(),
	}

	playerView := base
	playerView.Grid = eng.ClientGrid()
	h.broadcastPlayers(r, Message{Type: EvGameStart, Payload: playerView})

	specView := base
	specView.Grid = eng.SpectatorGrid()
	h.broadcastSpectators(r, Message{Type: EvGameStart, Payload: specView})

	h.registry.NotifyChanged()
	logger.Info("game started", "code", r.Code(), "starting", starting)
}

func (h *Hub) handleRevealTile(c *Client, p RevealTilePayload) {
	r, role, ok := h.registry.PlayerRole(c.ID)
	if !ok {
		h.sendError(c, EvError, "not in a room")
		return
	}
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	eng := r.Engine()
	if eng == nil {
		h.sendError(c, EvError, game.ErrNotPlaying.Error())
		return
	}

	res, err := eng.RevealTile(p.X, p.Z, role)
	if err != nil {
		h.sendError(c, EvError, err.Error())
		return
	}

	x, z := p.X, p.Z
	h.journal.AppendMove(r.Code(), journal.MoveRecord{
		Player: role, Action: "reveal",
		X: &x, Z: &z,
		RevealedCount: len(res.RevealedTiles),
		Timestamp:     time.Now(),
	})

	h.broadcastRoom(r, Message{Type: EvTileRevealed, Payload: TileRevealedPayload{
		X: p.X, Z: p.Z,
		Player:          role,
		HitMine:         res.HitMine,
		RevealedTiles:   res.RevealedTiles,
		CanPass:         res.CanPass,
		RevealsThisTurn: res.RevealsThisTurn,
		Scores:          res.Scores,
		TimeRemaining:   res.TimeRemaining,
		TimerStarted:    res.TimerStarted,
	}})

	if res.GameOver {
		h.finishGame(r, res.Winner, res.Loser, res.Reason, res.Scores, res.AllMines, true)
	}
}

func (h *Hub) handlePassTurn(c *Client) {
	r, role, ok := h.registry.PlayerRole(c.ID)
	if !ok {
		h.sendError(c, EvError, "not in a room")
		return
	}
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	eng := r.Engine()
	if eng == nil {
		h.sendError(c, EvError, game.ErrNotPlaying.Error())
		return
	}

	res, err := eng.PassTurn(role)
	if err != nil {
		h.sendError(c, EvError, err.Error())
		return
	}

	h.journal.AppendMove(r.Code(), journal.MoveRecord{
		Player: role, Action: "pass", Timestamp: time.Now(),
	})
	h.broadcastRoom(r, Message{Type: EvTurnChanged, Payload: TurnChangedPayload{
		CurrentPlayer:  res.NextPlayer,
		PreviousPlayer: res.PreviousPlayer,
		Scores:         res.Scores,
		TimeRemaining:  res.TimeRemaining,
	}})
}

func (h *Hub) handleRequestRestart(c *Client) {
	r, role, ok := h.registry.PlayerRole(c.ID)
	if !ok {
		h.sendError(c, EvError, "not in a room")
		return
	}
	if r.State() != game.StatusFinished {
		h.sendError(c, EvError, "no finished game to restart")
		return
	}
	opp := r.ConnID(role.Opponent())
	if opp == "" {
		h.sendError(c, EvError, "opponent has left")
		return
	}
	h.sendToConn(opp, Message{Type: EvRestartRequested, Payload: map[string]any{
		"from": role,
	}})
}

func (h *Hub) handleAcceptRestart(c *Client) {
	r, _, ok := h.registry.PlayerRole(c.ID)
	if !ok {
		h.sendError(c, EvError, "not in a room")
		return
	}
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	if r.State() != game.StatusFinished {
		h.sendError(c, EvError, "no finished game to restart")
		return
	}
	if r.Host() == nil || r.Guest() == nil {
		h.sendError(c, EvError, "opponent has left")
		return
	}
	h.startGame(r)
}

// buildSnapshot assembles the spectate_joined payload with a god-view game
// snapshot when a game is live.
func (h *Hub) buildSnapshot(r *room.Room) SpectateJoinedPayload {
	p := SpectateJoinedPayload{
		RoomCode:       r.Code(),
		HostName:       r.PlayerName(game.RoleHost),
		GuestName:      r.PlayerName(game.RoleGuest),
		SpectatorCount: r.SpectatorCount(),
		GameState:      r.State(),
		MatchStats:     r.Stats(),
		MessageHistory: r.MessageHistory(),
	}
	if eng := r.Engine(); eng != nil {
		settings := eng.Settings()
		snap := &GameSnapshot{
			Grid:          eng.SpectatorGrid(),
			GridSize:      settings.GridSize,
			MinesCount:    settings.MinesCount,
			CurrentPlayer: eng.CurrentPlayer(),
			TurnTimeLimit: settings.TurnTimeLimit,
			Scores:        eng.Scores(),
		}
		if remaining := eng.TimeRemaining(); remaining >= 0 {
			snap.TimeRemaining = &remaining
		}
		p.Game = snap
	}
	return p
}

func (h *Hub) handlePublicSpectate(c *Client, p SpectatePayload) {
	if h.registry.GetByConnID(c.ID) != nil {
		h.sendError(c, EvSpectateError, "already seated in a room")
		return
	}
	// A spectator switching rooms leaves the old one first.
	h.handleLeaveSpectate(c)

	r, err := h.registry.AddSpectator(p.RoomCode, c.ID)
	if err != nil {
		h.sendError(c, EvSpectateError, err.Error())
		return
	}
	h.mu.Lock()
	h.spectating[c.ID] = r.Code()
	h.mu.Unlock()

	// Snapshot and announcement go out under the dispatch lock so the
	// stream the new spectator sees afterwards is a clean continuation.
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	h.send(c, Message{Type: EvSpectateJoined, Payload: h.buildSnapshot(r)})
	h.broadcastRoom(r, Message{Type: EvSpectatorCountUpdate, Payload: map[string]int{
		"count": r.SpectatorCount(),
	}})
}

func (h *Hub) handleLeaveSpectate(c *Client) {
	h.mu.Lock()
	delete(h.spectating, c.ID)
	h.mu.Unlock()

	code, ok := h.registry.RemoveSpectatorByConn(c.ID)
	if !ok {
		return
	}
	if r := h.registry.GetByCode(code); r != nil {
		h.broadcastRoom(r, Message{Type: EvSpectatorCountUpdate, Payload: map[string]int{
			"count": r.SpectatorCount(),
		}})
	}
}

func (h *Hub) handleDanmaku(c *Client, p DanmakuPayload) {
	text := normalizeChat(p.Message)
	if text == "" {
		return
	}
	nickname := normalizeName(p.Nickname)
	if nickname == "" {
		nickname = "anonymous"
	}
	r := h.registry.GetByCode(p.RoomCode)
	if r == nil {
		return
	}
	if !h.allowChat(c.ID) {
		return
	}
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	_, isPlayer := r.RoleOf(c.ID)
	msg := room.ChatMessage{
		ID:        h.chatSeq.Add(1),
		Nickname:  nickname,
		Message:   text,
		Timestamp: time.Now().UnixMilli(),
		IsPlayer:  isPlayer,
	}
	r.AppendMessage(msg)
	h.broadcastRoom(r, Message{Type: EvDanmaku, Payload: msg})
	h.journal.AppendMessage(r.Code(), msg)
}

func (h *Hub) handleUpdateName(c *Client, p UpdateNamePayload) {
	name := normalizeName(p.NewName)
	if name == "" {
		h.sendError(c, EvError, "player name is required")
		return
	}
	r, role, ok := h.registry.PlayerRole(c.ID)
	if !ok {
		h.sendError(c, EvError, "not in a room")
		return
	}
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	r.SetPlayerName(role, name)
	h.broadcastRoom(r, Message{Type: EvPlayerNameUpdated, Payload: map[string]any{
		"role":    role,
		"newName": name,
	}})
	h.journal.AppendEvent(r.Code(), "name_changed", string(role)+":"+name)
	h.registry.NotifyChanged()
}

// handleEngineTimeout resolves a countdown expiry reported by the engine's
// timer goroutine. gen identifies the countdown that expired; the engine
// discards it when a pass has already rearmed the timer.
func (h *Hub) handleEngineTimeout(r *room.Room, gen uint64) {
	lock := h.lockRoom(r.Code())
	lock.Lock()
	defer lock.Unlock()

	eng := r.Engine()
	if eng == nil {
		return
	}
	res := eng.HandleTimeout(gen)
	if res == nil {
		return
	}

	if res.GameOver {
		h.finishGame(r, res.Winner, res.Loser, res.Reason, res.Scores, res.AllMines, true)
		return
	}

	h.journal.AppendMove(r.Code(), journal.MoveRecord{
		Player: res.Player, Action: "auto_pass", Timestamp: time.Now(),
	})
	h.broadcastRoom(r, Message{Type: EvTimeoutAction, Payload: TimeoutActionPayload{
		Player:        res.Player,
		AutoPassed:    true,
		NextPlayer:    res.NextPlayer,
		TimeRemaining: res.TimeRemaining,
		Scores:        res.Scores,
	}})
	h.broadcastRoom(r, Message{Type: EvTurnChanged, Payload: TurnChangedPayload{
		CurrentPlayer:  res.NextPlayer,
		PreviousPlayer: res.Player,
		Scores:         res.Scores,
		TimeRemaining:  res.TimeRemaining,
		Reason:         "timeout_auto_pass",
	}})
}

// finishGame settles a terminal outcome: stats (natural ends only), the
// game_over broadcast, the journal record, and the room's return to the
// finished state with no engine attached.
func (h *Hub) finishGame(r *room.Room, winner, loser game.Role, reason string, scores map[game.Role]int, allMines []game.Coord, natural bool) {
	if natural {
		r.RecordNaturalResult(winner)
	}

	h.broadcastRoom(r, Message{Type: EvGameOver, Payload: GameOverPayload{
		Winner:     winner,
		Loser:      loser,
		Reason:     reason,
		Scores:     scores,
		AllMines:   allMines,
		MatchStats: r.Stats(),
	}})
	h.journal.EndGame(r.Code(), journal.ResultRecord{
		Winner: winner, Loser: loser, Reason: reason, Scores: scores,
	})

	r.SetEngine(nil)
	r.SetState(game.StatusFinished)
	gamesFinished.WithLabelValues(reason).Inc()
	h.registry.NotifyChanged()
	logger.Info("game over", "code", r.Code(), "winner", winner, "reason", reason)
}
