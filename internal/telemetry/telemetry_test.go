package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitStdoutExportsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(nooptrace.NewTracerProvider()) })

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		Enabled:     true,
		Exporter:    "stdout",
		ServiceName: "discute-test",
		Writer:      &buf,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "conversation.turn")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "conversation.turn")
	assert.Contains(t, buf.String(), "discute-test")
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
