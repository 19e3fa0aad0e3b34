package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, err := Setup(&buf, "debug", FormatJSON)
	require.NoError(t, err)

	logger.Debug("bufferpool: evicted page", "page", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "DEBUG", rec["level"])
	require.Equal(t, "bufferpool: evicted page", rec["msg"])
	require.Equal(t, float64(3), rec["page"])
}

func TestSetup_LevelFilters(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, err := Setup(&buf, "warn", FormatText)
	require.NoError(t, err)

	logger.Info("hidden")
	require.Zero(t, buf.Len())
	logger.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestSetup_Rejects(t *testing.T) {
	_, err := Setup(&bytes.Buffer{}, "loud", FormatText)
	require.Error(t, err)
	_, err = Setup(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}
