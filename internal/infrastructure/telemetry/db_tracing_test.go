package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func setupRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, sr
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestNewDBTracingPlugin_FillsThreshold(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, nil)
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
	assert.NotNil(t, p.logger)
}

func TestDBTracingPlugin_Register(t *testing.T) {
	t.Run("disabled leaves callbacks alone", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop()).Register(db))
		assert.Nil(t, db.Callback().Query().Get("lexdesk_timing:after_query"))
	})

	t.Run("enabled installs timing callbacks", func(t *testing.T) {
		db := setupTestDB(t)
		cfg := DBTracingConfig{Enabled: true, DBSystem: "sqlite"}
		require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).Register(db))

		for _, name := range []string{"lexdesk_timing:before_query", "lexdesk_timing:after_query"} {
			assert.NotNil(t, db.Callback().Query().Get(name), name)
		}
		assert.NotNil(t, db.Callback().Raw().Get("lexdesk_timing:after_raw"))
	})

	t.Run("queries still work with tracing", func(t *testing.T) {
		db := setupTestDB(t)
		tp, sr := setupRecorder(t)
		require.NoError(t, NewDBTracingPlugin(DBTracingConfig{Enabled: true, DBSystem: "sqlite", LogFullSQL: true}, zap.NewNop()).Register(db))

		ctx, span := tp.Tracer("test").Start(context.Background(), "invoice.create")
		require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "M001AA"}).Error)

		var found tracedRow
		require.NoError(t, db.WithContext(ctx).First(&found, "name = ?", "M001AA").Error)
		span.End()

		assert.Equal(t, "M001AA", found.Name)
		assert.NotEmpty(t, sr.Ended())
	})
}

func TestDBTracingPlugin_Annotate(t *testing.T) {
	tp, sr := setupRecorder(t)
	core, logs := observer.New(zapcore.WarnLevel)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond}, zap.New(core))

	ctx, span := tp.Tracer("test").Start(context.Background(), "invoice.list")
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-5*time.Millisecond))

	db := setupTestDB(t).Session(&gorm.Session{})
	db.Statement.Context = ctx
	db.Statement.Table = "invoices"
	db.Statement.RowsAffected = 3
	db.Error = errors.New("deadlock detected")

	p.annotate(db)
	span.End()

	require.Len(t, sr.Ended(), 1)
	recorded := sr.Ended()[0]

	attrs := map[string]any{}
	for _, kv := range recorded.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(3), attrs["db.rows_affected"])
	assert.Equal(t, "invoices", attrs["db.sql.table"])
	assert.Equal(t, true, attrs["db.slow_query"])
	assert.Equal(t, "deadlock detected", recorded.Status().Description)

	var names []string
	for _, e := range recorded.Events() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "slow_query_warning")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Slow query", logs.All()[0].Message)
}

func TestDBTracingPlugin_AnnotateIgnoresNotFound(t *testing.T) {
	tp, sr := setupRecorder(t)
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())

	ctx, span := tp.Tracer("test").Start(context.Background(), "invoice.get")
	db := setupTestDB(t).Session(&gorm.Session{})
	db.Statement.Context = ctx
	db.Error = gorm.ErrRecordNotFound

	p.annotate(db)
	span.End()

	assert.NotEqual(t, "record not found", sr.Ended()[0].Status().Description)
	assert.Empty(t, sr.Ended()[0].Events())
}

func TestDBTracingPlugin_AnnotateWithoutContext(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())
	db := setupTestDB(t).Session(&gorm.Session{})
	db.Statement.Context = nil

	assert.NotPanics(t, func() { p.annotate(db) })
}
