package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	Init(Config{Level: level, Output: &buf})
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func TestInit_JSONOutput(t *testing.T) {
	buf := capture(t, "info")

	Info().Str("user", "Ada").Msg("accepted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "accepted", line["message"])
	require.Equal(t, "Ada", line["user"])
	require.Equal(t, "fish-tracker", line["service"])
}

func TestInit_LevelFilters(t *testing.T) {
	buf := capture(t, "warn")

	Info().Msg("hidden")
	Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	require.Equal(t, zerolog.Disabled, ParseLevel("off"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestCtx_AddsRequestID(t *testing.T) {
	buf := capture(t, "info")

	ctx := ContextWithRequestID(context.Background(), "req-1")
	Ctx(ctx).Info().Msg("hello")

	require.Contains(t, buf.String(), `"request_id":"req-1"`)
	require.Equal(t, "", RequestIDFromContext(context.Background()))
}
