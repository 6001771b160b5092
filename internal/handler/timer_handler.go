package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "studyhub/backend/internal/errors"
	"studyhub/backend/internal/middleware"
	"studyhub/backend/internal/service"
)

type controlFunc func(ctx context.Context, roomID, userID string) (*service.StateView, *apperrors.APIError)

type TimerHandler struct {
	timerService *service.TimerService
}

func NewTimerHandler(timerService *service.TimerService) *TimerHandler {
	return &TimerHandler{timerService: timerService}
}

func (h *TimerHandler) GetState(c *gin.Context) {
	state, apiErr := h.timerService.GetState(c.Request.Context(), c.Param("roomId"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Start(c *gin.Context) {
	h.control(c, h.timerService.Start)
}

func (h *TimerHandler) Pause(c *gin.Context) {
	h.control(c, h.timerService.Pause)
}

func (h *TimerHandler) Reset(c *gin.Context) {
	h.control(c, h.timerService.Reset)
}

func (h *TimerHandler) control(c *gin.Context, op controlFunc) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeError(c, apperrors.Unauthorized(""))
		return
	}

	state, apiErr := op(c.Request.Context(), c.Param("roomId"), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) GetHistory(c *gin.Context) {
	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			writeError(c, apperrors.BadRequest("invalid_limit", "limit must be a number"))
			return
		}
		limit = parsed
	}

	sessions, apiErr := h.timerService.GetHistory(c.Request.Context(), c.Param("roomId"), limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *TimerHandler) GetStats(c *gin.Context) {
	stats, apiErr := h.timerService.GetStats(c.Request.Context(), c.Param("roomId"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
