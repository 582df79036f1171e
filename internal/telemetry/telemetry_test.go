package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithWriterExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{ServiceName: "marlin-test", Writer: &buf})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Logger)

	_, span := p.Tracer.Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, p.TracerProvider.ForceFlush(context.Background()))
	assert.Contains(t, buf.String(), "test-span")

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_NilWriterIsNoOpSink(t *testing.T) {
	p, err := New(Config{ServiceName: "marlin-test-noop"})
	require.NoError(t, err)

	_, span := p.Tracer.Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestEchoMiddleware_ReturnsNonNilMiddleware(t *testing.T) {
	mw := EchoMiddleware("marlin-test")
	assert.NotNil(t, mw)
}
