package apm

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chainsync/internal/apperror"
	"github.com/fd1az/chainsync/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("x-honeycomb-team=abc, api-key=k=v ,broken,=skip")
	assert.Equal(t, map[string]string{"x-honeycomb-team": "abc", "api-key": "k=v"}, got)
	assert.Empty(t, ParseHeaders(""))
}

func TestNewTraceProvider_None(t *testing.T) {
	tp, err := NewTraceProvider(context.Background(), Config{Exporter: NoExporter}, testLogger())
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())
}

func TestNewTraceProvider_UnknownExporter(t *testing.T) {
	_, err := NewTraceProvider(context.Background(), Config{Exporter: "jaeger"}, testLogger())
	assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))
}

func TestNewTraceProvider_Stdout(t *testing.T) {
	tp, err := NewTraceProvider(context.Background(), Config{ServiceName: "test", Exporter: StdoutExporter}, testLogger())
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())
}
