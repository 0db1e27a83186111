package game

// Role identifies one of the two seats in a room.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// Status is the engine lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Terminal reasons carried in game_over events.
const (
	ReasonHitMine              = "hit_mine"
	ReasonAllSafeRevealed      = "all_safe_revealed"
	ReasonOpponentDisconnected = "opponent_disconnected"
	ReasonTimeoutNoAction      = "timeout_no_action"

	// Unreachable with auto-pass timeouts; kept so older clients can still
	// decode the reason taxonomy.
	ReasonTimeoutHitMine = "timeout_hit_mine"
)

// Settings are the immutable per-game tuning parameters.
type Settings struct {
	GridSize         int `json:"gridSize"`
	MinesCount       int `json:"minesCount"`
	TurnTimeLimit    int `json:"turnTimeLimit"` // seconds
	MinRevealsToPass int `json:"minRevealsToPass"`
}

// Tile is a single grid cell. Coordinates use (x, z) to match the client's
// ground-plane axes.
type Tile struct {
	X             int
	Z             int
	IsMine        bool
	IsRevealed    bool
	NeighborMines int
}

// Coord is a bare grid position.
type Coord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// RevealedTile is one entry of the ordered reveal record sent to every
// audience after an accepted reveal.
type RevealedTile struct {
	X             int  `json:"x"`
	Z             int  `json:"z"`
	IsMine        bool `json:"isMine"`
	NeighborMines int  `json:"neighborMines"`
}

// TileView is a snapshot cell. Mine data is only populated for tiles the
// receiving audience is allowed to see; nil fields are omitted on the wire.
type TileView struct {
	X             int   `json:"x"`
	Z             int   `json:"z"`
	IsRevealed    bool  `json:"isRevealed"`
	IsMine        *bool `json:"isMine,omitempty"`
	NeighborMines *int  `json:"neighborMines,omitempty"`
}
