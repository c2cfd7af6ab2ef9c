package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_WaitSucceedsWithinBurst(t *testing.T) {
	l := PerSecond(1)
	err := l.Wait(context.Background())
	assert.NoError(t, err)
}

func TestLimiter_WaitRespectsCancelledContext(t *testing.T) {
	l := PerMinute(30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	assert.Error(t, err)
}
