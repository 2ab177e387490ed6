package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoggerDefaultsToNop(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, Logger(ctx))
	assert.False(t, HasLogger(ctx))

	logger := zap.NewExample()
	ctx = WithLogger(ctx, logger)
	assert.Same(t, logger, Logger(ctx))
	assert.True(t, HasLogger(ctx))

	assert.False(t, HasLogger(WithLogger(context.Background(), nil)))
}

func TestTraceRoundTrip(t *testing.T) {
	_, ok := Trace(context.Background())
	assert.False(t, ok)
	assert.Empty(t, TraceID(context.Background()))

	info := TraceInfo{TraceID: "abc", SpanID: "def", ProjectID: "retail"}
	ctx := WithTrace(context.Background(), info)
	got, ok := Trace(ctx)
	assert.True(t, ok)
	assert.Equal(t, info, got)
	assert.Equal(t, "abc", TraceID(ctx))
	assert.Equal(t, "projects/retail/traces/abc", got.CloudLoggingResource())
	assert.Empty(t, TraceInfo{TraceID: "abc"}.CloudLoggingResource())
}
