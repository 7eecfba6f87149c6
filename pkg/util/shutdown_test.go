package util

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return logger
}

func TestShutdownRunsInPriorityOrder(t *testing.T) {
	gs := NewGracefulShutdown(newTestLogger(), time.Second)

	var order []string
	gs.RegisterFunc("amqp", 20, func() { order = append(order, "amqp") })
	gs.RegisterFunc("http", 10, func() { order = append(order, "http") })
	gs.RegisterFunc("metrics", 20, func() { order = append(order, "metrics") })

	require.NoError(t, gs.Shutdown(context.Background()))
	assert.Equal(t, []string{"http", "amqp", "metrics"}, order)
}

func TestShutdownContinuesAfterFailure(t *testing.T) {
	gs := NewGracefulShutdown(newTestLogger(), time.Second)
	boom := errors.New("boom")

	stopped := false
	gs.Register(ShutdownResource{
		Name:     "http",
		Priority: 1,
		Shutdown: func(context.Context) error { return boom },
	})
	gs.RegisterFunc("amqp", 2, func() { stopped = true })

	err := gs.Shutdown(context.Background())
	require.Error(t, err)
	assert.True(t, stopped)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "shutdown error for http")
}

func TestShutdownTimeout(t *testing.T) {
	gs := NewGracefulShutdown(newTestLogger(), 50*time.Millisecond)

	gs.Register(ShutdownResource{
		Name: "stuck",
		Shutdown: func(ctx context.Context) error {
			time.Sleep(time.Second)
			return nil
		},
	})

	err := gs.Shutdown(context.Background())
	require.Error(t, err)

	var multi *MultiShutdownError
	require.ErrorAs(t, err, &multi)
	require.Len(t, multi.Errors, 1)
	assert.IsType(t, &ShutdownTimeoutError{}, multi.Errors[0])
}
