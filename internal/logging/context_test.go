package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithLoggerAndFromContext_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithFormat("text"), WithWriter(&buf), WithQuiet())
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
}

func TestFromContext_FallsBackToDefaultLoggerWhenUnset(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestContextHelpers_LogThroughAttachedLoggerWithCorrectSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithDebug(), WithFormat("text"), WithWriter(&buf), WithQuiet())
	ctx := WithLogger(context.Background(), logger)

	Info(ctx, "context info message")

	output := buf.String()
	assert.Contains(t, output, "context_test.go:")
	assert.NotContains(t, output, "internal/logging/context.go")
}

func TestInfof_FormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithFormat("text"), WithWriter(&buf), WithQuiet())
	ctx := WithLogger(context.Background(), logger)

	Infof(ctx, "formatted %s", "context")

	assert.Contains(t, buf.String(), "formatted context")
}
