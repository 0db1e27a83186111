package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{GridSize: 10, MinesCount: 10, TurnTimeLimit: 30, MinRevealsToPass: 1}
}

// newEngineWithMines builds an engine with mines at fixed positions and
// first-click placement disabled.
func newEngineWithMines(settings Settings, starting Role, mines []Coord, onTick TickFunc, onTimeout TimeoutFunc) *Engine {
	e := NewEngine(settings, starting, onTick, onTimeout)
	for _, m := range mines {
		e.grid[m.X][m.Z].IsMine = true
	}
	e.settings.MinesCount = len(mines)
	e.computeNeighborCounts()
	e.minesPlaced = true
	return e
}

func TestFirstClickSafety(t *testing.T) {
	for i := 0; i < 50; i++ {
		e := NewEngine(testSettings(), RoleHost, nil, nil)

		res, err := e.RevealTile(5, 5, RoleHost)
		require.NoError(t, err)
		require.False(t, res.HitMine)

		// The closed 3x3 neighborhood around the click must be mine-free.
		for dx := -1; dx <= 1; dx++ {
			for dz := -1; dz <= 1; dz++ {
				assert.False(t, e.grid[5+dx][5+dz].IsMine, "mine at (%d,%d)", 5+dx, 5+dz)
			}
		}
	}
}

func TestMineCountAndNeighborCounts(t *testing.T) {
	e := NewEngine(testSettings(), RoleHost, nil, nil)
	_, err := e.RevealTile(0, 0, RoleHost)
	require.NoError(t, err)

	mines := 0
	for x := 0; x < 10; x++ {
		for z := 0; z < 10; z++ {
			if e.grid[x][z].IsMine {
				mines++
				continue
			}
			want := 0
			for _, nb := range e.neighbors(x, z) {
				if e.grid[nb.X][nb.Z].IsMine {
					want++
				}
			}
			assert.Equal(t, want, e.grid[x][z].NeighborMines, "tile (%d,%d)", x, z)
		}
	}
	assert.Equal(t, 10, mines)
}

func TestFloodRevealFromZeroTile(t *testing.T) {
	// Single mine at (0,0) on a 10x10 grid: revealing the far corner floods
	// everything except the tiles numbered by that mine's adjacency.
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)

	res, err := e.RevealTile(9, 9, RoleHost)
	require.NoError(t, err)
	require.NotEmpty(t, res.RevealedTiles)

	// Every revealed tile must be safe, and each one (except the click) must
	// be adjacent to some other revealed zero tile.
	revealed := make(map[Coord]bool)
	for _, rt := range res.RevealedTiles {
		assert.False(t, rt.IsMine)
		revealed[Coord{X: rt.X, Z: rt.Z}] = true
	}
	for _, rt := range res.RevealedTiles {
		if rt.X == 9 && rt.Z == 9 {
			continue
		}
		reachable := false
		for _, nb := range e.neighbors(rt.X, rt.Z) {
			if revealed[nb] && e.grid[nb.X][nb.Z].NeighborMines == 0 {
				reachable = true
				break
			}
		}
		assert.True(t, reachable, "tile (%d,%d) not reachable through a zero tile", rt.X, rt.Z)
	}
}

func TestRevealRejections(t *testing.T) {
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)

	_, err := e.RevealTile(5, 5, RoleGuest)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = e.RevealTile(-1, 5, RoleHost)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = e.RevealTile(5, 10, RoleHost)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = e.RevealTile(0, 5, RoleHost)
	require.NoError(t, err)
	_, err = e.RevealTile(0, 5, RoleHost)
	assert.ErrorIs(t, err, ErrAlreadyRevealed)

	e.Stop()
	_, err = e.RevealTile(1, 5, RoleHost)
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestFirstClickScoresNothing(t *testing.T) {
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)

	// Pick a numbered tile so exactly one tile is revealed.
	res, err := e.RevealTile(0, 1, RoleHost)
	require.NoError(t, err)
	require.Len(t, res.RevealedTiles, 1)
	assert.Equal(t, 0, res.Scores[RoleHost])
	assert.True(t, res.TimerStarted)
	assert.Equal(t, 30, res.TimeRemaining)

	// Subsequent reveals score 10 per tile.
	res, err = e.RevealTile(1, 0, RoleHost)
	require.NoError(t, err)
	require.Len(t, res.RevealedTiles, 1)
	assert.Equal(t, 10, res.Scores[RoleHost])
	assert.False(t, res.TimerStarted)
}

func TestPassPreconditionAndTurnSwap(t *testing.T) {
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)

	_, err := e.PassTurn(RoleHost)
	assert.ErrorIs(t, err, ErrCannotPass)

	_, err = e.RevealTile(0, 1, RoleHost)
	require.NoError(t, err)

	_, err = e.PassTurn(RoleGuest)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	res, err := e.PassTurn(RoleHost)
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, res.NextPlayer)
	assert.Equal(t, RoleHost, res.PreviousPlayer)
	assert.Equal(t, 30, res.TimeRemaining)
	assert.Equal(t, 0, e.RevealsCount())
	assert.Equal(t, RoleGuest, e.CurrentPlayer())
}

func TestMineHitEndsGame(t *testing.T) {
	// 5x5, one mine at (0,0), host starts.
	settings := Settings{GridSize: 5, MinesCount: 1, TurnTimeLimit: 30, MinRevealsToPass: 1}
	e := newEngineWithMines(settings, RoleHost, []Coord{{X: 0, Z: 0}}, nil, nil)

	_, err := e.RevealTile(0, 1, RoleHost)
	require.NoError(t, err)
	_, err = e.PassTurn(RoleHost)
	require.NoError(t, err)

	res, err := e.RevealTile(0, 0, RoleGuest)
	require.NoError(t, err)
	assert.True(t, res.GameOver)
	assert.True(t, res.HitMine)
	assert.Equal(t, ReasonHitMine, res.Reason)
	assert.Equal(t, RoleHost, res.Winner)
	assert.Equal(t, RoleGuest, res.Loser)
	assert.Equal(t, []Coord{{X: 0, Z: 0}}, res.AllMines)
	assert.Equal(t, StatusFinished, e.Status())
}

func TestAllSafeRevealedWin(t *testing.T) {
	// 3x3, one mine at (0,0). Revealing (2,2) floods all 8 safe tiles and
	// ends the game with no pass recorded, so the clicker wins.
	settings := Settings{GridSize: 3, MinesCount: 1, TurnTimeLimit: 30, MinRevealsToPass: 1}
	e := newEngineWithMines(settings, RoleHost, []Coord{{X: 0, Z: 0}}, nil, nil)

	res, err := e.RevealTile(2, 2, RoleHost)
	require.NoError(t, err)
	assert.True(t, res.GameOver)
	assert.Equal(t, ReasonAllSafeRevealed, res.Reason)
	assert.Equal(t, RoleHost, res.Winner)
	assert.Len(t, res.RevealedTiles, 8)
	assert.Equal(t, 8, e.TotalRevealed())
}

func TestAllSafeRevealedWinnerIsLastPasser(t *testing.T) {
	settings := Settings{GridSize: 3, MinesCount: 1, TurnTimeLimit: 30, MinRevealsToPass: 1}
	e := newEngineWithMines(settings, RoleHost, []Coord{{X: 0, Z: 0}}, nil, nil)

	// Host reveals a numbered tile and passes; guest clears the rest.
	_, err := e.RevealTile(0, 1, RoleHost)
	require.NoError(t, err)
	_, err = e.PassTurn(RoleHost)
	require.NoError(t, err)

	res, err := e.RevealTile(2, 2, RoleGuest)
	require.NoError(t, err)
	assert.True(t, res.GameOver)
	assert.Equal(t, ReasonAllSafeRevealed, res.Reason)
	assert.Equal(t, RoleHost, res.Winner, "last passer wins the clear")
}

func TestTimeoutForfeitWithoutAction(t *testing.T) {
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)

	// Host acts, passes; guest lets the clock run out untouched.
	_, err := e.RevealTile(0, 1, RoleHost)
	require.NoError(t, err)
	_, err = e.PassTurn(RoleHost)
	require.NoError(t, err)

	res := e.HandleTimeout(e.TimerGen())
	require.NotNil(t, res)
	assert.True(t, res.GameOver)
	assert.Equal(t, ReasonTimeoutNoAction, res.Reason)
	assert.Equal(t, RoleHost, res.Winner)
	assert.Equal(t, RoleGuest, res.Loser)
	assert.Equal(t, StatusFinished, e.Status())

	// Late fires after the game ended are a no-op.
	assert.Nil(t, e.HandleTimeout(e.TimerGen()))
}

func TestTimeoutAutoPassAfterAction(t *testing.T) {
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)

	_, err := e.RevealTile(0, 1, RoleHost)
	require.NoError(t, err)

	res := e.HandleTimeout(e.TimerGen())
	require.NotNil(t, res)
	assert.False(t, res.GameOver)
	assert.True(t, res.AutoPassed)
	assert.Equal(t, RoleHost, res.Player)
	assert.Equal(t, RoleGuest, res.NextPlayer)
	assert.Equal(t, 30, res.TimeRemaining)
	assert.Equal(t, StatusPlaying, e.Status())
	assert.Equal(t, RoleGuest, e.CurrentPlayer())
}

func TestStaleTimerFireCannotForfeitFreshTurn(t *testing.T) {
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)

	// Host reveals, arming the countdown for their turn.
	_, err := e.RevealTile(0, 1, RoleHost)
	require.NoError(t, err)
	staleGen := e.TimerGen()

	// The pass rearms the countdown; the old generation is now superseded.
	_, err = e.PassTurn(RoleHost)
	require.NoError(t, err)

	// An expiry from the superseded countdown must not touch the guest's
	// freshly started turn.
	assert.Nil(t, e.HandleTimeout(staleGen))
	assert.Equal(t, StatusPlaying, e.Status())
	assert.Equal(t, RoleGuest, e.CurrentPlayer())

	// The current generation still resolves: the guest took no action, so
	// they forfeit.
	res := e.HandleTimeout(e.TimerGen())
	require.NotNil(t, res)
	assert.True(t, res.GameOver)
	assert.Equal(t, ReasonTimeoutNoAction, res.Reason)
	assert.Equal(t, RoleHost, res.Winner)
	assert.Equal(t, RoleGuest, res.Loser)
}

func TestGridMasking(t *testing.T) {
	mines := []Coord{{X: 0, Z: 0}}
	e := newEngineWithMines(testSettings(), RoleHost, mines, nil, nil)
	_, err := e.RevealTile(5, 5, RoleHost)
	require.NoError(t, err)

	client := e.ClientGrid()
	for x := range client {
		for z := range client[x] {
			tv := client[x][z]
			if tv.IsRevealed {
				require.NotNil(t, tv.IsMine)
				require.NotNil(t, tv.NeighborMines)
			} else {
				assert.Nil(t, tv.IsMine, "unrevealed tile (%d,%d) leaks isMine", x, z)
				assert.Nil(t, tv.NeighborMines, "unrevealed tile (%d,%d) leaks neighborMines", x, z)
			}
		}
	}

	spectator := e.SpectatorGrid()
	for x := range spectator {
		for z := range spectator[x] {
			require.NotNil(t, spectator[x][z].IsMine)
			require.NotNil(t, spectator[x][z].NeighborMines)
		}
	}
	assert.True(t, *spectator[0][0].IsMine)
}

func TestTimeRemainingBeforeFirstMove(t *testing.T) {
	e := NewEngine(testSettings(), RoleHost, nil, nil)
	assert.Equal(t, -1, e.TimeRemaining())
	assert.True(t, e.IsFirstMove())
}

func TestRandomPlaythroughsKeepInvariants(t *testing.T) {
	// Drive full random games and check the win-by-reveal boundary and the
	// monotonic reveal counter.
	for i := 0; i < 25; i++ {
		settings := Settings{GridSize: 6, MinesCount: 6, TurnTimeLimit: 30, MinRevealsToPass: 1}
		e := NewEngine(settings, RoleHost, nil, nil)
		safeTotal := 36 - 6

		for e.Status() == StatusPlaying {
			current := e.CurrentPlayer()
			moved := false
			for x := 0; x < 6 && !moved; x++ {
				for z := 0; z < 6 && !moved; z++ {
					res, err := e.RevealTile(x, z, current)
					if err != nil {
						continue
					}
					moved = true
					require.LessOrEqual(t, e.TotalRevealed(), safeTotal)
					if res.GameOver && res.Reason == ReasonAllSafeRevealed {
						require.Equal(t, safeTotal, e.TotalRevealed())
					}
				}
			}
			require.True(t, moved, "no legal move found while playing")
			if e.Status() == StatusPlaying {
				_, err := e.PassTurn(current)
				require.NoError(t, err)
			}
		}
	}
}
