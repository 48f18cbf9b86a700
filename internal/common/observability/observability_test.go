package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestTracing_StartSpanWithoutExporter(t *testing.T) {
	tr, err := NewTracing("registration-workers-test", "")
	require.NoError(t, err)

	obs := &Observability{}
	obs.AttachTracing(tr)

	ctx, span := obs.StartSpan(context.Background(), "apply", attribute.String("action", "submit"))
	assert.True(t, span.SpanContext().IsValid())
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, obs.Shutdown(context.Background()))
}

func TestObservability_NilSafeRecording(t *testing.T) {
	obs := &Observability{}
	obs.RecordJobProcessed(context.Background(), "issue-certificate", "completed")
	obs.RecordJobDuration(context.Background(), "issue-certificate", time.Second, "completed")

	var nilObs *Observability
	_, span := nilObs.StartSpan(context.Background(), "noop")
	span.End()
}
