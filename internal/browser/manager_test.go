// internal/browser/manager_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Screenshot.SaveToDisk = false
	m, err := NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestNewManagerDefersLaunch(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	// No browser process exists until the first session is requested.
	assert.Nil(t, m.Store())
	assert.Equal(t, 0, m.ActiveSessions())
}

func TestManagerSessionLookupMiss(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	_, ok := m.Session("no-such-session")
	assert.False(t, ok)
}

func TestShutdownBeforeLaunchIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := newTestManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.Shutdown(ctx))
}

func TestShutdownWithExpiredContextBeforeLaunch(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// An uninitialized manager has nothing to wait for.
	assert.NoError(t, m.Shutdown(ctx))
}
