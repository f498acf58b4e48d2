package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsInert(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestEnabledWithFileWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "sitetrace",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	assert.True(t, p.Enabled())
	require.NotNil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
}

func TestEnabledWithoutDestinationFails(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "sitetrace"})
	assert.Error(t, err)
}
