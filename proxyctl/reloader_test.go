package proxyctl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorbucket/credmon/proxyctl"
)

func TestNewCommandReloader_EmptyCommand(t *testing.T) {
	_, err := proxyctl.NewCommandReloader(nil)
	require.Error(t, err)
}

func TestReload_Success(t *testing.T) {
	r, err := proxyctl.NewCommandReloader([]string{"true"})
	require.NoError(t, err)

	assert.NoError(t, r.Reload(context.Background()))
}

func TestReload_NonZeroExit(t *testing.T) {
	r, err := proxyctl.NewCommandReloader([]string{"false"})
	require.NoError(t, err)

	err = r.Reload(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestReload_MissingBinary(t *testing.T) {
	r, err := proxyctl.NewCommandReloader([]string{"no-such-binary-credmon"})
	require.NoError(t, err)

	assert.Error(t, r.Reload(context.Background()))
}

func TestReload_Timeout(t *testing.T) {
	r, err := proxyctl.NewCommandReloader([]string{"sleep", "5"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = r.Reload(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second, "the command must be killed at the deadline")
}
