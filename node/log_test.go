package node

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"peer-node/transport/pipe"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDebugLogging(t *testing.T) {
	testCases := []struct {
		desc      string
		debug     bool
		wantDebug bool
	}{
		{desc: "debug off", debug: false, wantDebug: false},
		{desc: "debug on", debug: true, wantDebug: true},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			n, err := New(pipe.NewPipeTransport(clock.New()), logger, clock.New(), Options{Host: "pipe", Debug: tc.debug})
			require.NoError(t, err)

			_, err = n.SendToPeer(context.Background(), "pipe:1", "DATA", nil, false)
			assert.ErrorIs(t, err, ErrNoRoute)

			assert.Equal(t, tc.wantDebug, bytes.Contains(buf.Bytes(), []byte("unable to route")))
		})
	}
}

func TestLevelFloorKeepsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	h := withLevelFloor(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}), slog.LevelDebug)
	logger := slog.New(h).With("k", "v").WithGroup("g")

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNodeAttributeFollowsBoundPort(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	n, err := New(pipe.NewPipeTransport(clock.New()), logger, clock.New(), Options{Host: "pipe"})
	require.NoError(t, err)

	run := make(chan error, 1)
	go func() { run <- n.Run(context.Background()) }()
	<-n.Listening()

	require.NotZero(t, n.Port())
	assert.Contains(t, buf.String(), "node="+n.ID())
	assert.NotContains(t, buf.String(), "node=pipe:0")

	n.Shutdown()
	require.NoError(t, <-run)
	n.Wait()
}
