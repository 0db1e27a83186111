package ws

// Client -> server event names (player channel).
const (
	MsgCreateRoom       = "create_room"
	MsgJoinRoom         = "join_room"
	MsgRevealTile       = "reveal_tile"
	MsgPassTurn         = "pass_turn"
	MsgRequestRestart   = "request_restart"
	MsgAcceptRestart    = "accept_restart"
	MsgPublicSpectate   = "public_spectate"
	MsgLeaveSpectate    = "leave_spectate"
	MsgSendDanmaku      = "send_danmaku"
	MsgUpdatePlayerName = "update_player_name"
)

// Client -> server event names (admin channel).
const (
	MsgAdminSubscribeRooms = "subscribe_rooms"
	MsgAdminSpectate       = "admin_spectate"
	MsgAdminLeaveSpectate  = "admin_leave_spectate"
)

// Server -> client event names.
const (
	EvRoomCreated          = "room_created"
	EvRoomJoined           = "room_joined"
	EvJoinError            = "join_error"
	EvRedirectToSpectate   = "redirect_to_spectate"
	EvPlayerJoined         = "player_joined"
	EvGameStart            = "game_start"
	EvTileRevealed         = "tile_revealed"
	EvTurnChanged          = "turn_changed"
	EvTimerUpdate          = "timer_update"
	EvTimeoutAction        = "timeout_action"
	EvGameOver             = "game_over"
	EvRestartRequested     = "restart_requested"
	EvSpectateJoined       = "spectate_joined"
	EvSpectateError        = "spectate_error"
	EvSpectatorCountUpdate = "spectator_count_update"
	EvDanmaku              = "danmaku"
	EvPlayerNameUpdated    = "player_name_updated"
	EvRoomClosed           = "room_closed"
	EvError                = "error"

	EvAdminRoomsUpdate = "admin_rooms_update"
	EvAdminError       = "admin_error"
)
