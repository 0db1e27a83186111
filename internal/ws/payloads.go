package ws

import (
	"strings"

	"mineduel/internal/game"
	"mineduel/internal/room"
)

const (
	maxNameRunes = 10
	maxChatRunes = 50
)

// Message is the wire envelope for both directions: a type discriminator
// plus a type-specific payload.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// client -> server payloads

type CreateRoomPayload struct {
	PlayerName string         `json:"playerName"`
	Settings   *game.Settings `json:"settings,omitempty"`
}

type JoinRoomPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type RevealTilePayload struct {
	X int `json:"x"`
	Z int `json:"z"`
}

type SpectatePayload struct {
	RoomCode string `json:"roomCode"`
}

type DanmakuPayload struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
	Nickname string `json:"nickname"`
	IsPlayer bool   `json:"isPlayer,omitempty"`
}

type UpdateNamePayload struct {
	NewName string `json:"newName"`
}

// server -> client payloads (the rest are built as inline maps where a
// struct would not buy clarity)

type ErrorPayload struct {
	Error string `json:"error"`
}

type PlayerInfo struct {
	Name string `json:"name"`
}

// GameStartPayload announces a started game. Grid holds the masked view for
// players and the god view for spectators.
type GameStartPayload struct {
	Grid          [][]game.TileView `json:"grid"`
	GridSize      int               `json:"gridSize"`
	MinesCount    int               `json:"minesCount"`
	CurrentPlayer game.Role         `json:"currentPlayer"`
	TurnTimeLimit int               `json:"turnTimeLimit"`
	TimeRemaining *int              `json:"timeRemaining"`
	IsFirstMove   bool              `json:"isFirstMove"`
	Host          PlayerInfo        `json:"host"`
	Guest         PlayerInfo        `json:"guest"`
	MatchStats    room.MatchStats   `json:"matchStats"`
}

type TileRevealedPayload struct {
	X               int                 `json:"x"`
	Z               int                 `json:"z"`
	Player          game.Role           `json:"player"`
	HitMine         bool                `json:"hitMine"`
	RevealedTiles   []game.RevealedTile `json:"revealedTiles"`
	CanPass         bool                `json:"canPass"`
	RevealsThisTurn int                 `json:"revealsThisTurn"`
	Scores          map[game.Role]int   `json:"scores"`
	TimeRemaining   int                 `json:"timeRemaining"`
	TimerStarted    bool                `json:"timerStarted,omitempty"`
}

type TurnChangedPayload struct {
	CurrentPlayer  game.Role         `json:"currentPlayer"`
	PreviousPlayer game.Role         `json:"previousPlayer"`
	Scores         map[game.Role]int `json:"scores,omitempty"`
	TimeRemaining  int               `json:"timeRemaining"`
	Reason         string            `json:"reason,omitempty"`
}

type TimeoutActionPayload struct {
	Player        game.Role         `json:"player"`
	AutoPassed    bool              `json:"autoPassed"`
	NextPlayer    game.Role         `json:"nextPlayer"`
	TimeRemaining int               `json:"timeRemaining"`
	Scores        map[game.Role]int `json:"scores"`
}

type GameOverPayload struct {
	Winner     game.Role         `json:"winner"`
	Loser      game.Role         `json:"loser"`
	Reason     string            `json:"reason"`
	Scores     map[game.Role]int `json:"scores,omitempty"`
	AllMines   []game.Coord      `json:"allMines"`
	MatchStats room.MatchStats   `json:"matchStats"`
}

// GameSnapshot is the god-view state handed to a spectator who joins
// mid-game.
type GameSnapshot struct {
	Grid          [][]game.TileView `json:"grid"`
	GridSize      int               `json:"gridSize"`
	MinesCount    int               `json:"minesCount"`
	CurrentPlayer game.Role         `json:"currentPlayer"`
	TurnTimeLimit int               `json:"turnTimeLimit"`
	TimeRemaining *int              `json:"timeRemaining"`
	Scores        map[game.Role]int `json:"scores"`
}

type SpectateJoinedPayload struct {
	RoomCode       string             `json:"roomCode"`
	HostName       string             `json:"hostName"`
	GuestName      string             `json:"guestName,omitempty"`
	SpectatorCount int                `json:"spectatorCount"`
	GameState      game.Status        `json:"gameState"`
	Game           *GameSnapshot      `json:"game"`
	MatchStats     room.MatchStats    `json:"matchStats"`
	MessageHistory []room.ChatMessage `json:"messageHistory"`
}

// normalizeName trims and truncates a display name to maxNameRunes code
// points. Empty results are rejected by the caller.
func normalizeName(name string) string {
	return truncateRunes(strings.TrimSpace(name), maxNameRunes)
}

// normalizeChat trims and truncates a chat message to maxChatRunes code
// points.
func normalizeChat(message string) string {
	return truncateRunes(strings.TrimSpace(message), maxChatRunes)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}
