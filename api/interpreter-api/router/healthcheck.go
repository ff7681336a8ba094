// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interpreter_routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, postgres connectors.PostgresConnector) {
	logger.Info("HealthCheckRoutes added to engine.")
	apiv1 := engine.Group("")
	{
		apiv1.GET("/healthz/", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		apiv1.GET("/readiness/", func(ctx *gin.Context) {
			sqlDB, err := postgres.DB(ctx.Request.Context()).DB()
			if err == nil {
				err = sqlDB.PingContext(ctx.Request.Context())
			}
			if err != nil {
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
		})
	}
}
