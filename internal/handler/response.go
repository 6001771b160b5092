package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "studyhub/backend/internal/errors"
	"studyhub/backend/internal/middleware"
)

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.Internal("")
	}
	if apiErr.Status >= http.StatusInternalServerError {
		log.Error().
			Err(apiErr.Cause).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("room_id", c.Param("roomId")).
			Str("user_id", middleware.UserID(c)).
			Str("code", apiErr.Code).
			Msg(apiErr.Message)
	}
	c.JSON(apiErr.Status, apiErr.Body())
}

// bindJSON decodes the request body into dst and answers 400 when it cannot.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, apperrors.InvalidJSON())
		return false
	}
	return true
}
