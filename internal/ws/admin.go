package ws

import (
	"encoding/json"
)

// handleAdminMessage dispatches intents on the admin channel. Admin
// spectators ride the same room broadcasts as public ones but never touch
// the public spectator count.
func (h *Hub) handleAdminMessage(c *Client, msgType string, payload json.RawMessage) {
	switch msgType {
	case MsgAdminSubscribeRooms:
		h.mu.Lock()
		h.adminSubs[c.ID] = c
		h.mu.Unlock()
		h.send(c, Message{Type: EvAdminRoomsUpdate, Payload: h.registry.AllRoomsStats()})

	case MsgAdminSpectate:
		var p SpectatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			h.sendError(c, EvAdminError, "malformed payload")
			return
		}
		r := h.registry.GetByCode(p.RoomCode)
		if r == nil {
			h.sendError(c, EvAdminError, "room not found")
			return
		}
		h.mu.Lock()
		h.adminSpectate[c.ID] = r.Code()
		h.mu.Unlock()
		h.send(c, Message{Type: EvSpectateJoined, Payload: h.buildSnapshot(r)})

	case MsgAdminLeaveSpectate:
		h.mu.Lock()
		delete(h.adminSpectate, c.ID)
		h.mu.Unlock()

	default:
		h.sendError(c, EvAdminError, "unknown event: "+msgType)
	}
}

// pushAdminStats refreshes every subscribed admin with the current room
// list. Wired as the registry's onChange callback.
func (h *Hub) pushAdminStats() {
	h.mu.Lock()
	if len(h.adminSubs) == 0 {
		h.mu.Unlock()
		return
	}
	subs := make([]*Client, 0, len(h.adminSubs))
	for _, c := range h.adminSubs {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	msg := Message{Type: EvAdminRoomsUpdate, Payload: h.registry.AllRoomsStats()}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, c := range subs {
		c.enqueue(data)
	}
}
