package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
		ServiceName:       "lexdesk-billing",
	}

	tp, err := NewTracerProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.Equal(t, cfg, tp.GetConfig())
	assert.NoError(t, tp.ForceFlush(ctx))

	_, span := tp.Tracer("test").Start(ctx, "noop")
	span.End()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(t, tp.Shutdown(cancelled))
}

func TestNewTracerProvider_NilLogger(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tp.logger)
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping collector test in short mode")
	}

	ctx := context.Background()
	// the gRPC exporter connects lazily, so no collector is needed to build it
	tp, err := NewTracerProvider(ctx, Config{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
		ServiceName:       "lexdesk-billing",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())

	_, span := tp.Tracer("test").Start(ctx, "invoice.create")
	span.End()

	shutdownCtx, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	_ = tp.Shutdown(shutdownCtx)
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		sampled  bool
		contains string
	}{
		{"always", 1.0, true, "AlwaysOnSampler"},
		{"above one", 2.5, true, "AlwaysOnSampler"},
		{"never", 0.0, false, "AlwaysOffSampler"},
		{"ratio", 0.25, false, "TraceIDRatioBased"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSampler(tt.ratio)
			assert.Contains(t, s.Description(), "ParentBased")
			assert.Contains(t, s.Description(), tt.contains)

			if tt.contains == "TraceIDRatioBased" {
				return
			}
			res := s.ShouldSample(sdktrace.SamplingParameters{
				ParentContext: context.Background(),
				TraceID:       trace.TraceID{1},
				Name:          "root",
			})
			assert.Equal(t, tt.sampled, res.Decision == sdktrace.RecordAndSample)
		})
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource("lexdesk-billing", "")
	require.NoError(t, err)

	var name, version string
	for _, kv := range res.Attributes() {
		switch kv.Key {
		case semconv.ServiceNameKey:
			name = kv.Value.AsString()
		case semconv.ServiceVersionKey:
			version = kv.Value.AsString()
		}
	}
	assert.Equal(t, "lexdesk-billing", name)
	assert.Equal(t, defaultServiceVersion, version)
}
