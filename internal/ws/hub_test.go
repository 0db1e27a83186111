package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mineduel/internal/config"
	"mineduel/internal/game"
	"mineduel/internal/journal"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	store, err := journal.NewStore(t.TempDir())
	require.NoError(t, err)
	cfg := &config.Config{
		GridSize:          8,
		DefaultMinesCount: 10,
		TurnTimeLimit:     30,
		MinRevealsToPass:  1,
		RoomCodeLength:    6,
		RoomIdleTimeout:   30 * time.Minute,
	}
	return NewHub(cfg, store)
}

// testClient is a hub client with no websocket behind it; messages land on
// the Send channel.
func testClient(h *Hub, isAdmin bool) *Client {
	c := newClient(h.nextConnID(), nil, h, isAdmin)
	h.Register(c)
	return c
}

type received struct {
	Type    string
	Payload json.RawMessage
}

func recv(t *testing.T, c *Client) received {
	t.Helper()
	select {
	case data := <-c.Send:
		var env received
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return received{}
	}
}

func recvType(t *testing.T, c *Client, want string) json.RawMessage {
	t.Helper()
	env := recv(t, c)
	require.Equal(t, want, env.Type)
	return env.Payload
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

// createAndJoin drives two clients through room creation into a started
// game and returns the room code.
func createAndJoin(t *testing.T, h *Hub, host, guest *Client) string {
	t.Helper()

	h.HandleMessage(host, []byte(`{"type":"create_room","payload":{"playerName":"alice"}}`))
	var created struct {
		RoomCode string `json:"roomCode"`
	}
	require.NoError(t, json.Unmarshal(recvType(t, host, EvRoomCreated), &created))
	require.Len(t, created.RoomCode, 6)

	h.handleJoinRoom(guest, JoinRoomPayload{RoomCode: created.RoomCode, PlayerName: "bob"})
	recvType(t, guest, EvRoomJoined)
	recvType(t, host, EvPlayerJoined)
	recvType(t, host, EvGameStart)
	recvType(t, guest, EvGameStart)
	return created.RoomCode
}

func TestCreateAndJoinStartsGame(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)

	h.HandleMessage(host, []byte(`{"type":"create_room","payload":{"playerName":"alice"}}`))
	var created struct {
		RoomCode string        `json:"roomCode"`
		Role     game.Role     `json:"role"`
		Settings game.Settings `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(recvType(t, host, EvRoomCreated), &created))
	assert.Equal(t, game.RoleHost, created.Role)
	assert.Equal(t, 8, created.Settings.GridSize)

	h.handleJoinRoom(guest, JoinRoomPayload{RoomCode: created.RoomCode, PlayerName: "bob"})
	recvType(t, guest, EvRoomJoined)
	recvType(t, host, EvPlayerJoined)

	var start GameStartPayload
	require.NoError(t, json.Unmarshal(recvType(t, host, EvGameStart), &start))
	assert.True(t, start.IsFirstMove)
	assert.Equal(t, game.RoleHost, start.CurrentPlayer)
	assert.Nil(t, start.TimeRemaining)
	assert.Equal(t, "alice", start.Host.Name)
	assert.Equal(t, "bob", start.Guest.Name)

	// players never see unrevealed mine data
	for _, row := range start.Grid {
		for _, tile := range row {
			assert.Nil(t, tile.IsMine)
		}
	}

	r := h.registry.GetByCode(created.RoomCode)
	require.NotNil(t, r)
	assert.Equal(t, game.StatusPlaying, r.State())
}

func TestCreateRequiresName(t *testing.T) {
	h := testHub(t)
	c := testClient(h, false)

	h.handleCreateRoom(c, CreateRoomPayload{PlayerName: "   "})
	recvType(t, c, EvError)
}

func TestJoinUnknownRoom(t *testing.T) {
	h := testHub(t)
	c := testClient(h, false)

	h.handleJoinRoom(c, JoinRoomPayload{RoomCode: "ZZZZZZ", PlayerName: "bob"})
	recvType(t, c, EvJoinError)
}

func TestJoinMidGameRedirectsToSpectate(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	late := testClient(h, false)
	h.handleJoinRoom(late, JoinRoomPayload{RoomCode: code, PlayerName: "carol"})
	var redirect struct {
		RoomCode string `json:"roomCode"`
	}
	require.NoError(t, json.Unmarshal(recvType(t, late, EvRedirectToSpectate), &redirect))
	assert.Equal(t, code, redirect.RoomCode)
}

func TestRevealBroadcastAndTurnRejection(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	createAndJoin(t, h, host, guest)

	// not the guest's turn
	h.handleRevealTile(guest, RevealTilePayload{X: 0, Z: 0})
	recvType(t, guest, EvError)

	h.handleRevealTile(host, RevealTilePayload{X: 0, Z: 0})
	var revealed TileRevealedPayload
	require.NoError(t, json.Unmarshal(recvType(t, host, EvTileRevealed), &revealed))
	assert.False(t, revealed.HitMine)
	assert.Equal(t, game.RoleHost, revealed.Player)
	assert.NotEmpty(t, revealed.RevealedTiles)
	assert.True(t, revealed.TimerStarted)
	// opening click scores nothing
	assert.Equal(t, 0, revealed.Scores[game.RoleHost])

	require.NoError(t, json.Unmarshal(recvType(t, guest, EvTileRevealed), &revealed))
	assert.Equal(t, game.RoleHost, revealed.Player)
}

func TestPassTurnBroadcastsTurnChanged(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	createAndJoin(t, h, host, guest)

	h.handleRevealTile(host, RevealTilePayload{X: 0, Z: 0})
	drain(host)
	drain(guest)

	h.handlePassTurn(host)
	var turn TurnChangedPayload
	require.NoError(t, json.Unmarshal(recvType(t, guest, EvTurnChanged), &turn))
	assert.Equal(t, game.RoleGuest, turn.CurrentPlayer)
	assert.Equal(t, game.RoleHost, turn.PreviousPlayer)
}

func TestSpectatorGetsGodView(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	// reveal once so mines exist
	h.handleRevealTile(host, RevealTilePayload{X: 3, Z: 3})
	drain(host)
	drain(guest)

	spec := testClient(h, false)
	h.handlePublicSpectate(spec, SpectatePayload{RoomCode: code})

	var joined SpectateJoinedPayload
	require.NoError(t, json.Unmarshal(recvType(t, spec, EvSpectateJoined), &joined))
	assert.Equal(t, code, joined.RoomCode)
	assert.Equal(t, 1, joined.SpectatorCount)
	require.NotNil(t, joined.Game)

	mines := 0
	for _, row := range joined.Game.Grid {
		for _, tile := range row {
			require.NotNil(t, tile.IsMine)
			if *tile.IsMine {
				mines++
			}
		}
	}
	assert.Equal(t, joined.Game.MinesCount, mines)

	// everyone hears the count change
	recvType(t, spec, EvSpectatorCountUpdate)
	recvType(t, host, EvSpectatorCountUpdate)
}

func TestSpectateUnknownRoom(t *testing.T) {
	h := testHub(t)
	spec := testClient(h, false)

	h.handlePublicSpectate(spec, SpectatePayload{RoomCode: "NOSUCH"})
	recvType(t, spec, EvSpectateError)
}

func TestDanmakuCooldownDropsBurst(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	h.handleDanmaku(host, DanmakuPayload{RoomCode: code, Message: "gg", Nickname: "alice"})
	h.handleDanmaku(host, DanmakuPayload{RoomCode: code, Message: "again", Nickname: "alice"})

	var msg struct {
		Message  string `json:"message"`
		IsPlayer bool   `json:"isPlayer"`
	}
	require.NoError(t, json.Unmarshal(recvType(t, guest, EvDanmaku), &msg))
	assert.Equal(t, "gg", msg.Message)
	assert.True(t, msg.IsPlayer)

	select {
	case data := <-guest.Send:
		t.Fatalf("cooldown should have dropped the second message, got %s", data)
	default:
	}

	r := h.registry.GetByCode(code)
	require.Len(t, r.MessageHistory(), 1)
}

func TestDanmakuTruncatesLongMessage(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	long := make([]rune, 80)
	for i := range long {
		long[i] = 'x'
	}
	h.handleDanmaku(host, DanmakuPayload{RoomCode: code, Message: string(long), Nickname: "verylongnickname"})

	var msg struct {
		Message  string `json:"message"`
		Nickname string `json:"nickname"`
	}
	require.NoError(t, json.Unmarshal(recvType(t, guest, EvDanmaku), &msg))
	assert.Len(t, []rune(msg.Message), maxChatRunes)
	assert.Len(t, []rune(msg.Nickname), maxNameRunes)
}

func TestUpdateNameBroadcasts(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	h.handleUpdateName(guest, UpdateNamePayload{NewName: "robert"})
	var upd struct {
		Role    game.Role `json:"role"`
		NewName string    `json:"newName"`
	}
	require.NoError(t, json.Unmarshal(recvType(t, host, EvPlayerNameUpdated), &upd))
	assert.Equal(t, game.RoleGuest, upd.Role)
	assert.Equal(t, "robert", upd.NewName)

	r := h.registry.GetByCode(code)
	assert.Equal(t, "robert", r.PlayerName(game.RoleGuest))
}

func TestGuestDisconnectForfeitsToHost(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	h.OnDisconnect(guest)

	var over GameOverPayload
	require.NoError(t, json.Unmarshal(recvType(t, host, EvGameOver), &over))
	assert.Equal(t, game.RoleHost, over.Winner)
	assert.Equal(t, game.ReasonOpponentDisconnected, over.Reason)
	// forfeits never count toward match stats
	assert.Equal(t, 0, over.MatchStats.GamesPlayed)

	r := h.registry.GetByCode(code)
	require.NotNil(t, r)
	assert.Equal(t, game.StatusFinished, r.State())
	assert.Nil(t, r.Engine())
}

func TestHostDisconnectClosesRoom(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	spec := testClient(h, false)
	h.handlePublicSpectate(spec, SpectatePayload{RoomCode: code})
	drain(spec)
	drain(host)
	drain(guest)

	h.OnDisconnect(host)

	recvType(t, guest, EvGameOver)
	recvType(t, guest, EvRoomClosed)
	recvType(t, spec, EvRoomClosed)
	assert.Nil(t, h.registry.GetByCode(code))
}

func TestTimeoutAutoPassFlow(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	h.handleRevealTile(host, RevealTilePayload{X: 0, Z: 0})
	drain(host)
	drain(guest)

	r := h.registry.GetByCode(code)
	h.handleEngineTimeout(r, r.Engine().TimerGen())

	var action TimeoutActionPayload
	require.NoError(t, json.Unmarshal(recvType(t, host, EvTimeoutAction), &action))
	assert.True(t, action.AutoPassed)
	assert.Equal(t, game.RoleHost, action.Player)
	assert.Equal(t, game.RoleGuest, action.NextPlayer)

	var turn TurnChangedPayload
	require.NoError(t, json.Unmarshal(recvType(t, host, EvTurnChanged), &turn))
	assert.Equal(t, "timeout_auto_pass", turn.Reason)
}

func TestTimeoutWithoutActionForfeits(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	// force the countdown into a started state without revealing anything
	r := h.registry.GetByCode(code)
	h.handleRevealTile(host, RevealTilePayload{X: 0, Z: 0})
	drain(host)
	drain(guest)
	h.handlePassTurn(host)
	drain(host)
	drain(guest)

	// guest has not acted this turn
	h.handleEngineTimeout(r, r.Engine().TimerGen())

	var over GameOverPayload
	require.NoError(t, json.Unmarshal(recvType(t, host, EvGameOver), &over))
	assert.Equal(t, game.RoleHost, over.Winner)
	assert.Equal(t, game.ReasonTimeoutNoAction, over.Reason)
	assert.Equal(t, 1, over.MatchStats.GamesPlayed)
	assert.Equal(t, 1, over.MatchStats.HostWins)

	// loser starts the rematch
	assert.Equal(t, game.RoleGuest, r.NextStarter())
	assert.Equal(t, game.StatusFinished, r.State())
}

func TestStaleTimeoutAfterPassIsIgnored(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)
	r := h.registry.GetByCode(code)

	h.handleRevealTile(host, RevealTilePayload{X: 0, Z: 0})
	staleGen := r.Engine().TimerGen()
	h.handlePassTurn(host)
	drain(host)
	drain(guest)

	// An expiry callback from the countdown the pass superseded must not
	// forfeit the guest's fresh turn.
	h.handleEngineTimeout(r, staleGen)

	select {
	case data := <-guest.Send:
		var env received
		require.NoError(t, json.Unmarshal(data, &env))
		require.Equal(t, EvTimerUpdate, env.Type, "stale countdown expiry produced a transition")
	default:
	}
	eng := r.Engine()
	require.NotNil(t, eng)
	assert.Equal(t, game.StatusPlaying, eng.Status())
	assert.Equal(t, game.RoleGuest, eng.CurrentPlayer())
}

func TestRoomEventsSerializedUnderDispatchLock(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)
	r := h.registry.GetByCode(code)

	h.handleRevealTile(host, RevealTilePayload{X: 0, Z: 0})
	drain(host)
	drain(guest)

	// While the room's dispatch lock is held, a pass must neither advance
	// the engine nor broadcast.
	lock := h.lockRoom(code)
	lock.Lock()
	done := make(chan struct{})
	go func() {
		h.handlePassTurn(host)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case data := <-guest.Send:
		// the 1 Hz countdown keeps ticking; only transitions are held back
		var env received
		require.NoError(t, json.Unmarshal(data, &env))
		require.Equal(t, EvTimerUpdate, env.Type, "broadcast escaped the dispatch lock")
	case <-done:
		t.Fatal("pass completed while the dispatch lock was held")
	default:
	}
	assert.Equal(t, game.RoleHost, r.Engine().CurrentPlayer())

	lock.Unlock()
	<-done
	for {
		env := recv(t, guest)
		if env.Type == EvTimerUpdate {
			continue
		}
		require.Equal(t, EvTurnChanged, env.Type)
		var turn TurnChangedPayload
		require.NoError(t, json.Unmarshal(env.Payload, &turn))
		assert.Equal(t, game.RoleGuest, turn.CurrentPlayer)
		return
	}
}

func TestRestartFlow(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	r := h.registry.GetByCode(code)
	h.handleRevealTile(host, RevealTilePayload{X: 0, Z: 0})
	h.handlePassTurn(host)
	h.handleEngineTimeout(r, r.Engine().TimerGen()) // guest forfeits
	drain(host)
	drain(guest)

	h.handleRequestRestart(host)
	recvType(t, guest, EvRestartRequested)

	h.handleAcceptRestart(guest)
	var start GameStartPayload
	require.NoError(t, json.Unmarshal(recvType(t, host, EvGameStart), &start))
	// loser of the previous game opens
	assert.Equal(t, game.RoleGuest, start.CurrentPlayer)
	assert.Equal(t, 1, start.MatchStats.GamesPlayed)
	assert.Equal(t, game.StatusPlaying, r.State())
}

func TestAdminSubscribeAndSpectate(t *testing.T) {
	h := testHub(t)
	host := testClient(h, false)
	guest := testClient(h, false)
	code := createAndJoin(t, h, host, guest)

	admin := testClient(h, true)
	h.HandleMessage(admin, []byte(`{"type":"subscribe_rooms"}`))

	var summary struct {
		TotalRooms int `json:"totalRooms"`
	}
	require.NoError(t, json.Unmarshal(recvType(t, admin, EvAdminRoomsUpdate), &summary))
	assert.Equal(t, 1, summary.TotalRooms)

	h.handleAdminMessage(admin, MsgAdminSpectate, mustJSON(t, SpectatePayload{RoomCode: code}))
	var joined SpectateJoinedPayload
	require.NoError(t, json.Unmarshal(recvType(t, admin, EvSpectateJoined), &joined))
	assert.Equal(t, code, joined.RoomCode)
	// admin spectators stay off the public count
	assert.Equal(t, 0, joined.SpectatorCount)

	// registry mutations push fresh stats to the subscriber
	drain(admin)
	other := testClient(h, false)
	h.handleCreateRoom(other, CreateRoomPayload{PlayerName: "carol"})
	require.NoError(t, json.Unmarshal(recvType(t, admin, EvAdminRoomsUpdate), &summary))
	assert.Equal(t, 2, summary.TotalRooms)
}

func TestUnknownEventReported(t *testing.T) {
	h := testHub(t)
	c := testClient(h, false)

	h.HandleMessage(c, []byte(`{"type":"warp_core_breach"}`))
	payload := recvType(t, c, EvError)
	assert.Contains(t, string(payload), "unknown event")
}

func TestClampSettings(t *testing.T) {
	h := testHub(t)

	s := h.clampSettings(nil)
	assert.Equal(t, 8, s.GridSize)
	assert.Equal(t, 10, s.MinesCount)

	s = h.clampSettings(&game.Settings{GridSize: 100, MinesCount: 9999, TurnTimeLimit: 1, MinRevealsToPass: 50})
	assert.Equal(t, 20, s.GridSize)
	assert.Equal(t, 20*20-9, s.MinesCount)
	assert.Equal(t, 5, s.TurnTimeLimit)
	assert.Equal(t, 10, s.MinRevealsToPass)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
