package simnet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlisia/mlst/simnet"
)

// TestStopReturnsNilOnCleanCancellation guards that Stop's errgroup.Wait
// doesn't surface context.Canceled as a real failure: every node's Run
// returns ctx.Err() once Stop cancels the shared context, and that's the
// expected way a harness run ends, not an error worth reporting.
func TestStopReturnsNilOnCleanCancellation(t *testing.T) {
	h := simnet.New(42)
	cfg := simnet.FastTunables()

	_, err := h.AddRoot(1, cfg, func([]byte) {})
	require.NoError(t, err)
	_, err = h.AddNode(2, cfg)
	require.NoError(t, err)
	h.Connect(1, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.Stop())
}
