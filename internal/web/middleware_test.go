package web

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestIPLimiterEvictsIdleAddresses(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiter(rate.Limit(1), 1, time.Minute)
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	first := l.get("10.0.0.1")
	l.get("10.0.0.2")
	require.Len(t, l.limiters, 2)

	// same bucket while the address stays active
	clock = clock.Add(30 * time.Second)
	assert.Same(t, first, l.get("10.0.0.1"))

	clock = clock.Add(45 * time.Second)
	l.get("10.0.0.3")
	assert.Len(t, l.limiters, 2)
	assert.Contains(t, l.limiters, "10.0.0.1")
	assert.NotContains(t, l.limiters, "10.0.0.2")

	clock = clock.Add(2 * time.Minute)
	l.get("10.0.0.4")
	assert.Len(t, l.limiters, 1)
	assert.NotSame(t, first, l.get("10.0.0.1"))
}

func TestSetupModeFollowsEnvironment(t *testing.T) {
	tmpl, err := LoadTemplates("")
	require.NoError(t, err)
	h := NewHandler(HandlerConfig{})

	Setup(RouterConfig{Handler: h, Templates: tmpl, Logger: zap.NewNop(), Development: true})
	assert.Equal(t, gin.DebugMode, gin.Mode())

	Setup(RouterConfig{Handler: h, Templates: tmpl, Logger: zap.NewNop()})
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}
