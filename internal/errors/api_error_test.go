package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithCauseUnwraps(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Internal("").WithCause(cause)

	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error: connection reset", err.Error())
	assert.Equal(t, map[string]interface{}{
		"error": map[string]interface{}{"code": "internal_error", "message": "internal server error"},
	}, err.Body())
}

func TestTooManyRequestsCarriesRetryDelay(t *testing.T) {
	err := TooManyRequests("", 1500*time.Millisecond)
	assert.Equal(t, http.StatusTooManyRequests, err.Status)
	assert.Equal(t, "too many requests", err.Message)
	assert.Equal(t, map[string]interface{}{"retryAfterMs": int64(1500)}, err.Details)

	assert.Nil(t, TooManyRequests("slow down", 0).Details)
}
