// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/configs"
)

// PostgresConnector hands out request-scoped gorm handles. All repositories
// go through this; nothing holds a *gorm.DB across a request boundary.
type PostgresConnector interface {
	DB(ctx context.Context) *gorm.DB
	Close() error
}

type postgresConnector struct {
	logger commons.Logger
	db     *gorm.DB
}

// NewPostgresConnector opens the pooled gorm connection described by cfg.
func NewPostgresConnector(cfg configs.PostgresConfig, logger commons.Logger) (PostgresConnector, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Auth.User, cfg.Auth.Password, cfg.DbName, cfg.SslMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnection)
	sqlDB.SetMaxIdleConns(cfg.MaxIdealConnection)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Infof("postgres connected: host=%s db=%s", cfg.Host, cfg.DbName)
	return &postgresConnector{logger: logger, db: db}, nil
}

func (c *postgresConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

func (c *postgresConnector) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
