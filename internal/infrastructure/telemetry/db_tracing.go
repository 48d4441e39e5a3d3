package telemetry

import (
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queryStartKey = "telemetry:query_start"

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	DBSystem        string
	SlowQueryThresh time.Duration
	// WithVariables includes bound parameters in span statements. Off by default.
	WithVariables bool
}

// RegisterDBTracing installs the otelgorm plugin and a callback that flags
// slow statements on their span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.WithVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	thresh := cfg.SlowQueryThresh
	if thresh == 0 {
		thresh = 200 * time.Millisecond
	}
	start := func(tx *gorm.DB) { tx.InstanceSet(queryStartKey, time.Now()) }
	finish := func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(queryStartKey)
		if !ok {
			return
		}
		elapsed := time.Since(v.(time.Time))
		if elapsed < thresh {
			return
		}
		trace.SpanFromContext(tx.Statement.Context).SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
		)
		logger.Warn("slow query",
			zap.String("table", tx.Statement.Table),
			zap.Duration("elapsed", elapsed),
		)
	}

	cb := db.Callback()
	registrations := []struct {
		register func(name string, fn func(*gorm.DB)) error
		name     string
		fn       func(*gorm.DB)
	}{
		{cb.Create().Before("gorm:create").Register, "telemetry:create_start", start},
		{cb.Create().After("gorm:create").Register, "telemetry:create_finish", finish},
		{cb.Query().Before("gorm:query").Register, "telemetry:query_start", start},
		{cb.Query().After("gorm:query").Register, "telemetry:query_finish", finish},
		{cb.Update().Before("gorm:update").Register, "telemetry:update_start", start},
		{cb.Update().After("gorm:update").Register, "telemetry:update_finish", finish},
		{cb.Raw().Before("gorm:raw").Register, "telemetry:raw_start", start},
		{cb.Raw().After("gorm:raw").Register, "telemetry:raw_finish", finish},
		{cb.Row().Before("gorm:row").Register, "telemetry:row_start", start},
		{cb.Row().After("gorm:row").Register, "telemetry:row_finish", finish},
	}
	for _, r := range registrations {
		if err := r.register(r.name, r.fn); err != nil {
			return err
		}
	}
	return nil
}
