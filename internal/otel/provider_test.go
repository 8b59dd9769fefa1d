package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, noop.Meter{}, p.Meter("test"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledRequiresWriter(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "foreman"})
	assert.Error(t, err)
}

func TestProvider_ExportsOnFlush(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "foreman",
		Version:      "test",
		Interval:     time.Hour,
		MetricWriter: &buf,
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	counter, err := p.Meter("test").Int64Counter("foreman.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "foreman.test.count")
	assert.Contains(t, buf.String(), "foreman")
}

func TestNew_DefaultInterval(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{Enabled: true, ServiceName: "foreman", MetricWriter: &buf})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	assert.Equal(t, DefaultInterval, p.config.Interval)
}
