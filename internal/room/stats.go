package room

import (
	"time"

	"mineduel/internal/game"
)

// RoomStats is the admin projection of one room.
type RoomStats struct {
	Code           string        `json:"code"`
	State          game.Status   `json:"state"`
	HostName       string        `json:"hostName"`
	GuestName      string        `json:"guestName,omitempty"`
	Settings       game.Settings `json:"settings"`
	CreatedAt      time.Time     `json:"createdAt"`
	GameStartedAt  *time.Time    `json:"gameStartedAt,omitempty"`
	PlayDuration   int64         `json:"playDuration"` // seconds, 0 unless playing
	SpectatorCount int           `json:"spectatorCount"`

	CurrentPlayer game.Role         `json:"currentPlayer,omitempty"`
	TimeRemaining *int              `json:"timeRemaining,omitempty"`
	Scores        map[game.Role]int `json:"scores,omitempty"`
}

// Summary is the full admin_rooms_update payload body.
type Summary struct {
	TotalRooms    int         `json:"totalRooms"`
	PlayingCount  int         `json:"playingCount"`
	WaitingCount  int         `json:"waitingCount"`
	FinishedCount int         `json:"finishedCount"`
	Rooms         []RoomStats `json:"rooms"`
}

// AllRoomsStats projects every live room for the admin room list.
func (g *Registry) AllRoomsStats() Summary {
	rooms := g.Rooms()

	summary := Summary{Rooms: make([]RoomStats, 0, len(rooms))}
	for _, r := range rooms {
		rs := RoomStats{
			Code:           r.Code(),
			State:          r.State(),
			Settings:       r.Settings(),
			CreatedAt:      r.CreatedAt(),
			SpectatorCount: r.SpectatorCount(),
		}
		if host := r.Host(); host != nil {
			rs.HostName = host.Name
		}
		if guest := r.Guest(); guest != nil {
			rs.GuestName = guest.Name
		}
		if started := r.GameStartedAt(); !started.IsZero() {
			t := started
			rs.GameStartedAt = &t
			if rs.State == game.StatusPlaying {
				rs.PlayDuration = int64(time.Since(started).Seconds())
			}
		}
		if eng := r.Engine(); eng != nil {
			rs.CurrentPlayer = eng.CurrentPlayer()
			rs.Scores = eng.Scores()
			if remaining := eng.TimeRemaining(); remaining >= 0 {
				rs.TimeRemaining = &remaining
			}
		}

		switch rs.State {
		case game.StatusPlaying:
			summary.PlayingCount++
		case game.StatusWaiting:
			summary.WaitingCount++
		case game.StatusFinished:
			summary.FinishedCount++
		}
		summary.Rooms = append(summary.Rooms, rs)
	}
	summary.TotalRooms = len(summary.Rooms)
	return summary
}
