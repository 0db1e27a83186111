package game

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// Engine rejection errors. The dispatcher reports these to the offending
// connection; the engine state is unchanged when any of them is returned.
var (
	ErrNotPlaying      = errors.New("game is not in progress")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrOutOfBounds     = errors.New("coordinates out of bounds")
	ErrAlreadyRevealed = errors.New("tile already revealed")
	ErrCannotPass      = errors.New("must reveal at least the minimum tiles before passing")
)

// TickFunc receives the remaining seconds after every 1 Hz timer tick.
type TickFunc func(remaining int)

// TimeoutFunc fires when the current player's countdown reaches zero. It
// carries the generation of the countdown that expired; the receiver hands
// it back to HandleTimeout so a fire from a superseded countdown cannot
// resolve against a turn that legally restarted the clock in between.
type TimeoutFunc func(gen uint64)

// Engine holds the authoritative state of a single game. All exported
// methods are safe for concurrent use; the timer runs on its own goroutine
// and re-enters through the same lock.
type Engine struct {
	mu sync.Mutex

	settings Settings
	grid     [][]Tile

	status         Status
	currentPlayer  Role
	startingPlayer Role

	revealsThisTurn int
	totalRevealed   int
	scores          map[Role]int
	winner          Role
	lastPassedBy    Role

	isFirstMove bool
	minesPlaced bool

	timeRemaining int
	timerStop     chan struct{}
	timerGen      uint64

	onTick    TickFunc
	onTimeout TimeoutFunc
}

// RevealResult is the outcome of an accepted reveal.
type RevealResult struct {
	GameOver bool
	HitMine  bool
	Reason   string
	Winner   Role
	Loser    Role

	RevealedTiles []RevealedTile
	AllMines      []Coord

	CanPass         bool
	RevealsThisTurn int
	Scores          map[Role]int
	TimeRemaining   int
	TimerStarted    bool
}

// PassResult is the outcome of an accepted pass.
type PassResult struct {
	NextPlayer     Role
	PreviousPlayer Role
	Scores         map[Role]int
	TimeRemaining  int
}

// TimeoutResult is the outcome of a countdown expiry: either a forfeit (no
// action this turn) or an automatic pass.
type TimeoutResult struct {
	GameOver bool
	Winner   Role
	Loser    Role
	Reason   string
	AllMines []Coord

	AutoPassed    bool
	Player        Role
	NextPlayer    Role
	Scores        map[Role]int
	TimeRemaining int
}

// NewEngine builds an engine with an empty grid and no mines. Mines are
// placed on the first accepted reveal so the opening click is always safe.
func NewEngine(settings Settings, starting Role, onTick TickFunc, onTimeout TimeoutFunc) *Engine {
	e := &Engine{
		settings:       settings,
		startingPlayer: starting,
		currentPlayer:  starting,
		scores:         map[Role]int{RoleHost: 0, RoleGuest: 0},
		isFirstMove:    true,
		onTick:         onTick,
		onTimeout:      onTimeout,
	}
	e.generateGrid()
	return e
}

func (e *Engine) generateGrid() {
	n := e.settings.GridSize
	grid := make([][]Tile, n)
	for x := range grid {
		grid[x] = make([]Tile, n)
		for z := range grid[x] {
			grid[x][z] = Tile{X: x, Z: z}
		}
	}
	e.grid = grid
	e.status = StatusPlaying
}

// placeMines shuffles every position outside the clicked tile's closed 3x3
// neighborhood and takes the first minesCount of them.
func (e *Engine) placeMines(safeX, safeZ int) {
	n := e.settings.GridSize

	legal := make([]Coord, 0, n*n)
	for x := 0; x < n; x++ {
		for z := 0; z < n; z++ {
			dx, dz := x-safeX, z-safeZ
			if dx >= -1 && dx <= 1 && dz >= -1 && dz <= 1 {
				continue
			}
			legal = append(legal, Coord{X: x, Z: z})
		}
	}

	rand.Shuffle(len(legal), func(i, j int) {
		legal[i], legal[j] = legal[j], legal[i]
	})

	count := e.settings.MinesCount
	if count > len(legal) {
		count = len(legal)
	}
	for _, c := range legal[:count] {
		e.grid[c.X][c.Z].IsMine = true
	}

	e.computeNeighborCounts()
	e.minesPlaced = true
}

func (e *Engine) computeNeighborCounts() {
	n := e.settings.GridSize
	for x := 0; x < n; x++ {
		for z := 0; z < n; z++ {
			if e.grid[x][z].IsMine {
				continue
			}
			count := 0
			for _, nb := range e.neighbors(x, z) {
				if e.grid[nb.X][nb.Z].IsMine {
					count++
				}
			}
			e.grid[x][z].NeighborMines = count
		}
	}
}

func (e *Engine) neighbors(x, z int) []Coord {
	n := e.settings.GridSize
	result := make([]Coord, 0, 8)
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			if dx == 0 && dz == 0 {
				continue
			}
			nx, nz := x+dx, z+dz
			if nx >= 0 && nx < n && nz >= 0 && nz < n {
				result = append(result, Coord{X: nx, Z: nz})
			}
		}
	}
	return result
}

func (e *Engine) inBounds(x, z int) bool {
	n := e.settings.GridSize
	return x >= 0 && x < n && z >= 0 && z < n
}

// RevealTile applies a reveal intent from player. The first accepted reveal
// of the game places the mines and starts the countdown.
func (e *Engine) RevealTile(x, z int, player Role) (*RevealResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if player != e.currentPlayer {
		return nil, ErrNotYourTurn
	}
	if !e.inBounds(x, z) {
		return nil, ErrOutOfBounds
	}
	if e.grid[x][z].IsRevealed {
		return nil, ErrAlreadyRevealed
	}

	firstClick := e.isFirstMove
	if !e.minesPlaced {
		e.placeMines(x, z)
	}

	revealed := e.doReveal(x, z)
	e.revealsThisTurn += len(revealed)
	e.totalRevealed += len(revealed)

	// The opening click of the match scores nothing.
	if !firstClick {
		e.scores[player] += len(revealed) * 10
	}
	if firstClick {
		e.isFirstMove = false
		e.startTimerLocked()
	}

	if e.grid[x][z].IsMine {
		winner := player.Opponent()
		e.finishLocked(winner)
		return &RevealResult{
			GameOver:      true,
			HitMine:       true,
			Reason:        ReasonHitMine,
			Winner:        winner,
			Loser:         player,
			RevealedTiles: revealed,
			AllMines:      e.allMinesLocked(),
			Scores:        e.scoresCopyLocked(),
		}, nil
	}

	safeTotal := e.settings.GridSize*e.settings.GridSize - e.settings.MinesCount
	if e.totalRevealed >= safeTotal {
		winner := e.lastPassedBy
		if winner == "" {
			winner = player
		}
		e.finishLocked(winner)
		return &RevealResult{
			GameOver:      true,
			Reason:        ReasonAllSafeRevealed,
			Winner:        winner,
			Loser:         winner.Opponent(),
			RevealedTiles: revealed,
			AllMines:      e.allMinesLocked(),
			Scores:        e.scoresCopyLocked(),
		}, nil
	}

	return &RevealResult{
		RevealedTiles:   revealed,
		CanPass:         e.revealsThisTurn >= e.settings.MinRevealsToPass,
		RevealsThisTurn: e.revealsThisTurn,
		Scores:          e.scoresCopyLocked(),
		TimeRemaining:   e.timeRemaining,
		TimerStarted:    firstClick,
	}, nil
}

// doReveal uncovers (x, z) and flood-fills through zero-neighbor tiles using
// an explicit worklist. Returns the newly revealed tiles in reveal order.
func (e *Engine) doReveal(x, z int) []RevealedTile {
	var revealed []RevealedTile
	queue := []Coord{{X: x, Z: z}}

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		tile := &e.grid[c.X][c.Z]
		if tile.IsRevealed {
			continue
		}
		tile.IsRevealed = true
		revealed = append(revealed, RevealedTile{
			X:             tile.X,
			Z:             tile.Z,
			IsMine:        tile.IsMine,
			NeighborMines: tile.NeighborMines,
		})

		if tile.IsMine || tile.NeighborMines != 0 {
			continue
		}
		for _, nb := range e.neighbors(c.X, c.Z) {
			if !e.grid[nb.X][nb.Z].IsRevealed {
				queue = append(queue, nb)
			}
		}
	}
	return revealed
}

// PassTurn hands the turn to the opponent. Requires the minimum number of
// reveals this turn.
func (e *Engine) PassTurn(player Role) (*PassResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying {
		return nil, ErrNotPlaying
	}
	if player != e.currentPlayer {
		return nil, ErrNotYourTurn
	}
	if e.revealsThisTurn < e.settings.MinRevealsToPass {
		return nil, ErrCannotPass
	}

	e.lastPassedBy = player
	e.currentPlayer = player.Opponent()
	e.revealsThisTurn = 0
	e.startTimerLocked()

	return &PassResult{
		NextPlayer:     e.currentPlayer,
		PreviousPlayer: player,
		Scores:         e.scoresCopyLocked(),
		TimeRemaining:  e.timeRemaining,
	}, nil
}

// HandleTimeout resolves an expired countdown: forfeit when the current
// player took no action this turn, automatic pass otherwise. Returns nil
// when the game is no longer playing or gen belongs to a superseded
// countdown (a pass or auto-pass rearmed the timer after the fire was
// already in flight).
func (e *Engine) HandleTimeout(gen uint64) *TimeoutResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying || gen != e.timerGen {
		return nil
	}

	current := e.currentPlayer

	if e.revealsThisTurn == 0 {
		winner := current.Opponent()
		e.finishLocked(winner)
		return &TimeoutResult{
			GameOver: true,
			Winner:   winner,
			Loser:    current,
			Reason:   ReasonTimeoutNoAction,
			AllMines: e.allMinesLocked(),
			Scores:   e.scoresCopyLocked(),
		}
	}

	e.lastPassedBy = current
	e.currentPlayer = current.Opponent()
	e.revealsThisTurn = 0
	e.startTimerLocked()

	return &TimeoutResult{
		AutoPassed:    true,
		Player:        current,
		NextPlayer:    e.currentPlayer,
		Scores:        e.scoresCopyLocked(),
		TimeRemaining: e.timeRemaining,
	}
}

func (e *Engine) finishLocked(winner Role) {
	e.status = StatusFinished
	e.winner = winner
	e.stopTimerLocked()
}

// Stop halts the countdown and marks the engine finished. Used on room
// teardown and disconnect forfeits.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusFinished
	e.stopTimerLocked()
}

// startTimerLocked (re)arms the 1 Hz countdown at the full turn limit. A
// generation counter fences out ticks from a superseded runner.
func (e *Engine) startTimerLocked() {
	e.stopTimerLocked()
	e.timeRemaining = e.settings.TurnTimeLimit
	e.timerStop = make(chan struct{})
	go e.runTimer(e.timerGen, e.timerStop)
}

func (e *Engine) stopTimerLocked() {
	if e.timerStop != nil {
		close(e.timerStop)
		e.timerStop = nil
	}
	e.timerGen++
}

func (e *Engine) runTimer(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.status != StatusPlaying || gen != e.timerGen {
				e.mu.Unlock()
				return
			}
			e.timeRemaining--
			remaining := e.timeRemaining
			e.mu.Unlock()

			if remaining <= 0 {
				if e.onTimeout != nil {
					e.onTimeout(gen)
				}
				return
			}
			if e.onTick != nil {
				e.onTick(remaining)
			}
		}
	}
}

// ClientGrid is the masked snapshot for players: mine data only on revealed
// tiles.
func (e *Engine) ClientGrid() [][]TileView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gridViewLocked(false)
}

// SpectatorGrid is the god view: mine data on every tile.
func (e *Engine) SpectatorGrid() [][]TileView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gridViewLocked(true)
}

func (e *Engine) gridViewLocked(full bool) [][]TileView {
	n := e.settings.GridSize
	view := make([][]TileView, n)
	for x := 0; x < n; x++ {
		view[x] = make([]TileView, n)
		for z := 0; z < n; z++ {
			t := e.grid[x][z]
			tv := TileView{X: t.X, Z: t.Z, IsRevealed: t.IsRevealed}
			if full || t.IsRevealed {
				isMine := t.IsMine
				neighbors := t.NeighborMines
				tv.IsMine = &isMine
				tv.NeighborMines = &neighbors
			}
			view[x][z] = tv
		}
	}
	return view
}

// AllMines lists every mine position. Only sent at game end.
func (e *Engine) AllMines() []Coord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allMinesLocked()
}

func (e *Engine) allMinesLocked() []Coord {
	var mines []Coord
	for x := range e.grid {
		for z := range e.grid[x] {
			if e.grid[x][z].IsMine {
				mines = append(mines, Coord{X: x, Z: z})
			}
		}
	}
	return mines
}

func (e *Engine) scoresCopyLocked() map[Role]int {
	return map[Role]int{
		RoleHost:  e.scores[RoleHost],
		RoleGuest: e.scores[RoleGuest],
	}
}

// Accessors used by the registry's stats projection and the dispatcher.

func (e *Engine) Settings() Settings {
	return e.settings
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) CurrentPlayer() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentPlayer
}

func (e *Engine) Winner() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.winner
}

func (e *Engine) Scores() map[Role]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scoresCopyLocked()
}

// TimeRemaining returns the countdown seconds, or -1 when the timer has not
// started yet (no reveal so far this game).
func (e *Engine) TimeRemaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isFirstMove {
		return -1
	}
	return e.timeRemaining
}

// TimerGen is the generation of the currently armed countdown. Pair it
// with HandleTimeout when resolving an expiry outside the TimeoutFunc path.
func (e *Engine) TimerGen() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timerGen
}

func (e *Engine) IsFirstMove() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isFirstMove
}

func (e *Engine) TotalRevealed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalRevealed
}

func (e *Engine) RevealsCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revealsThisTurn
}
