package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"studyhub/backend/internal/broadcast"
	"studyhub/backend/internal/middleware"
	"studyhub/backend/internal/service"
	"studyhub/backend/internal/timer"
)

type WSHandler struct {
	timerService *service.TimerService
	hub          *broadcast.Hub
}

func NewWSHandler(timerService *service.TimerService, hub *broadcast.Hub) *WSHandler {
	return &WSHandler{timerService: timerService, hub: hub}
}

// Connect upgrades the request and streams every event for the room, starting
// with a sync event carrying the current state.
func (h *WSHandler) Connect(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := middleware.UserID(c)

	state, apiErr := h.timerService.GetState(c.Request.Context(), roomID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	initial := broadcast.NewEvent(roomID, timer.EventSync, state.TimerState, state.ServerTime)
	if err := h.hub.Serve(c.Writer, c.Request, roomID, userID, &initial); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("websocket connect failed")
	}
}
