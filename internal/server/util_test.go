package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBase(t *testing.T) {
	for in, want := range map[string]string{
		"":          "",
		"/":         "",
		"  ":        "",
		"api":       "/api",
		"/api":      "/api",
		"/api//":    "/api",
		" /shell/ ": "/shell",
		"v1/api":    "/v1/api",
	} {
		assert.Equal(t, want, sanitizeBase(in), "sanitizeBase(%q)", in)
	}
}

func TestWriteJSONAndRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := gin.New()
	r.Use(requestLogger(log))
	r.GET("/api/state", func(c *gin.Context) {
		writeJSON(c, http.StatusAccepted, map[string]string{"state": "starting"})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"state":"starting"}`, rec.Body.String())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/api/state", entry["path"])
	assert.EqualValues(t, http.StatusAccepted, entry["status"])
}
