package sysmetrics

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_CollectPopulatesHostFields(t *testing.T) {
	c := NewCollector()
	snap := c.Collect(context.Background())

	assert.Equal(t, runtime.GOOS, snap.OS)
	assert.Equal(t, runtime.GOARCH, snap.Arch)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_CollectIsSafeWithCanceledContext(t *testing.T) {
	c := NewCollector()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NotPanics(t, func() {
		c.Collect(ctx)
	})
}
