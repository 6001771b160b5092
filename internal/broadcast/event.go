package broadcast

import (
	"time"

	"studyhub/backend/internal/model"
)

// Event is the wire envelope shared by websocket clients and NATS
// subscribers.
type Event struct {
	Event      string           `json:"event"`
	RoomID     string           `json:"roomId"`
	State      model.TimerState `json:"state"`
	ServerTime time.Time        `json:"serverTime"`
}

func NewEvent(roomID, event string, state model.TimerState, now time.Time) Event {
	return Event{
		Event:      event,
		RoomID:     roomID,
		State:      state,
		ServerTime: now.UTC(),
	}
}
