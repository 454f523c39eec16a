package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/tugas/internal/config"
	obslogger "github.com/smallbiznis/tugas/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	GormLog   obslogger.GormLoggerConfig `optional:"true"`
}

// New opens the configured database with tracing and pool metrics attached.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	gormLogCfg := p.GormLog
	if gormLogCfg.Level == 0 {
		gormLogCfg = obslogger.DefaultGormLoggerConfig()
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(gormLogCfg),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("register tracing plugin: %w", err)
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Config.DBName,
		RefreshInterval: 15,
	})); err != nil {
		return nil, fmt.Errorf("register metrics plugin: %w", err)
	}

	poolCfg := ConfigFrom(p.Config)
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if poolCfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(poolCfg.MaxIdleConn)
	}
	if poolCfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(poolCfg.MaxOpenConn)
	}
	if poolCfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(poolCfg.ConnMaxLifetime)
	}
	if poolCfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(poolCfg.ConnMaxIdleTime)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			p.Log.Info("closing database pool")
			return sqlDB.Close()
		},
	})

	p.Log.Info("database connected", zap.String("type", poolCfg.Type))
	return conn, nil
}
