// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package interpreter_routers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	auth_api "github.com/rapidaai/interpreter-api/api/interpreter-api/auth"
	conversation_api "github.com/rapidaai/interpreter-api/api/interpreter-api/conversation"
	channel_audio "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/channel/audio"
	channel_control "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/channel/control"
	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
)

// NewEngine builds the gin engine with the shared middleware stack.
func NewEngine(cfg *config.AppConfig, logger commons.Logger) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}))
	return engine
}

// AuthApiRoute mounts the register/login/refresh/me surface.
func AuthApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, authApi auth_api.AuthHttpApi) {
	apiv1 := engine.Group("auth")
	{
		apiv1.POST("/register", authApi.Register)
		apiv1.POST("/login", authApi.Login)
		apiv1.POST("/refresh", authApi.Refresh)
		apiv1.GET("/me", authApi.BearerMiddleware(), authApi.Me)
	}
}

// ConversationApiRoute mounts the bearer-protected REST reads.
func ConversationApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	authApi auth_api.AuthHttpApi, conversationApi conversation_api.ConversationHttpApi) {
	apiv1 := engine.Group("conversations", authApi.BearerMiddleware())
	{
		apiv1.GET("", conversationApi.List)
		apiv1.GET("/:id/actions", conversationApi.Actions)
	}
}

// ChannelRoutes mounts the two WebSocket endpoints: the authenticated control
// channel at the root and the audio ingest channel at /transcription.
func ChannelRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	control channel_control.ControlChannel, audio channel_audio.AudioChannel) {
	engine.GET("/", control.Handle)
	engine.GET("/transcription", audio.Handle)
}
