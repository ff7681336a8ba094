// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auth_api "github.com/rapidaai/interpreter-api/api/interpreter-api/auth"
	conversation_api "github.com/rapidaai/interpreter-api/api/interpreter-api/conversation"
	channel_audio "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/channel/audio"
	channel_control "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/channel/control"
	internal_command "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/command"
	internal_coordinator "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/coordinator"
	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
	internal_intelligence "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/intelligence"
	internal_pipeline "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/pipeline"
	internal_repository "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/repository"
	interpreter_routers "github.com/rapidaai/interpreter-api/api/interpreter-api/router"
	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to initialize config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("failed to load application config: %v", err)
	}

	logger := commons.NewApplicationLogger(cfg.Name, cfg.LogLevel, cfg.LogPath)
	defer func() { _ = logger.Sync() }()

	postgres, err := connectors.NewPostgresConnector(cfg.PostgresConfig, logger)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer func() { _ = postgres.Close() }()

	if err := internal_repository.Migrate(context.Background(), postgres); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}

	users := internal_repository.NewUserRepository(postgres, logger)
	patients := internal_repository.NewPatientRepository(postgres, logger)
	conversations := internal_repository.NewConversationRepository(postgres, logger)
	messages := internal_repository.NewMessageRepository(postgres, logger)
	actions := internal_repository.NewActionRepository(postgres, logger)
	summaries := internal_repository.NewSummaryRepository(postgres, logger)
	histories := internal_repository.NewMedicalHistoryRepository(postgres, logger)

	intelligence, err := internal_intelligence.NewOpenAIIntelligence(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to build intelligence client: %v", err)
	}
	synthesizer, err := internal_intelligence.NewOpenAISynthesizer(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to build speech synthesizer: %v", err)
	}

	hub := internal_hub.NewNotificationHub(logger)
	executor := internal_command.NewCommandExecutor(actions, hub, logger)
	pipeline := internal_pipeline.NewTranscriptPipeline(
		intelligence, synthesizer, conversations, messages, executor, hub, logger)
	coordinator := internal_coordinator.NewConversationCoordinator(
		cfg, logger, hub, pipeline, intelligence,
		patients, conversations, messages, actions, summaries, histories)

	authService := auth_api.NewAuthService(cfg, users, logger)
	authApi := auth_api.NewAuthHttpApi(authService, logger)
	conversationApi := conversation_api.NewConversationHttpApi(conversations, actions, logger)
	control := channel_control.NewControlChannel(logger, authService, coordinator, hub, pipeline,
		conversations, messages, actions, summaries, histories)
	audio := channel_audio.NewAudioChannel(logger, coordinator)

	engine := interpreter_routers.NewEngine(cfg, logger)
	interpreter_routers.HealthCheckRoutes(cfg, engine, logger, postgres)
	interpreter_routers.AuthApiRoute(cfg, engine, logger, authApi)
	interpreter_routers.ConversationApiRoute(cfg, engine, logger, authApi, conversationApi)
	interpreter_routers.ChannelRoutes(cfg, engine, logger, control, audio)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	go func() {
		logger.Infof("%s listening on %s", cfg.Name, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown failed: %v", err)
	}
	coordinator.Shutdown()
	logger.Info("shutdown complete")
}
