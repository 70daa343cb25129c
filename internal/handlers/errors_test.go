package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/services"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, i18n.Initialize())
	log := logrus.New()
	log.SetOutput(io.Discard)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"precondition", fmt.Errorf("%w: duplicate merchant", services.ErrPrecondition), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", services.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"too late", services.ErrTooLateToQuote, http.StatusConflict, "TOO_LATE_TO_QUOTE"},
		{"wrapped too late", fmt.Errorf("submit: %w", services.ErrTooLateToQuote), http.StatusConflict, "TOO_LATE_TO_QUOTE"},
		{"invalid state", services.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
		{"stale", services.ErrStaleQuote, http.StatusConflict, "STALE_QUOTE"},
		{"race lost", services.ErrRaceLost, http.StatusConflict, "ALREADY_RESOLVED"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/v1/broadcasts", nil)

			respondError(c, log, "broadcast", tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp utils.APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestParseID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, i18n.Initialize())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/broadcasts/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	_, ok := parseID(c, "id", "broadcast")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
