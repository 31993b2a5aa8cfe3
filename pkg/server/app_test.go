package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CorrPull/pkg/config"
)

func TestStartRejectsUnknownMode(t *testing.T) {
	a := New(&config.Config{}, nil, nil, nil, nil, nil, nil)
	err := a.Start("stream")
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.Contains(t, err.Error(), `"stream"`)
}

func TestServeWithoutComponentsStopsOnCancel(t *testing.T) {
	a := New(&config.Config{}, nil, nil, nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Serve(ctx))
}
