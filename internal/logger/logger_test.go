package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/jwebster45206/party-engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&buf, &config.Config{Environment: "production", LogLevel: slog.LevelInfo})

	WithError(WithRoom(log, "room-1", "user-1"), errors.New("boom")).Info("turn resolved")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "turn resolved", line["msg"])
	assert.Equal(t, "room-1", line["room_id"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "party-engine", line["service"])
}

func TestSetup_DevelopmentRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&buf, &config.Config{Environment: "development", LogLevel: slog.LevelWarn})

	log.Info("hidden")
	WithRequestID(log, "req-9").Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "request_id=req-9")
}
