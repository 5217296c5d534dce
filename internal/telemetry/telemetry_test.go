package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
)

func TestNewDisabledReturnsNoop(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)

	_, isNoop := tel.(*noopTelemetry)
	assert.True(t, isNoop)

	tel.RecordUnit("all", 3, time.Millisecond, true)
	tel.RecordDispatch("GET", 200, true)
	assert.NoError(t, tel.Close())
}

func TestNewRejectsUnknownExporter(t *testing.T) {
	_, err := New(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ServiceName:  "x9",
		ExporterType: "zipkin",
		SampleRate:   1,
	}, "test")
	assert.ErrorContains(t, err, "unsupported exporter type")
}
