// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package conversation_api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	auth_api "github.com/rapidaai/interpreter-api/api/interpreter-api/auth"
	internal_repository "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/repository"
	"github.com/rapidaai/interpreter-api/pkg/commons"
)

// ConversationHttpApi serves the REST read surface; the envelopes match the
// control channel's list payloads.
type ConversationHttpApi interface {
	List(ctx *gin.Context)
	Actions(ctx *gin.Context)
}

type conversationHttpApi struct {
	conversations internal_repository.ConversationRepository
	actions       internal_repository.ActionRepository
	logger        commons.Logger
}

func NewConversationHttpApi(
	conversations internal_repository.ConversationRepository,
	actions internal_repository.ActionRepository,
	logger commons.Logger,
) ConversationHttpApi {
	return &conversationHttpApi{conversations: conversations, actions: actions, logger: logger}
}

func (api *conversationHttpApi) List(ctx *gin.Context) {
	claims, ok := auth_api.Principal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	conversations, err := api.conversations.GetForUser(ctx.Request.Context(), claims.Id)
	if err != nil {
		api.logger.Errorf("conversation: failed to list for user %d: %v", claims.Id, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (api *conversationHttpApi) Actions(ctx *gin.Context) {
	claims, ok := auth_api.Principal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	conversationId, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || conversationId == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	conversation, err := api.conversations.Get(ctx.Request.Context(), conversationId)
	if err != nil || conversation.UserId != claims.Id {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	actions, err := api.actions.AggregatedByConversation(ctx.Request.Context(), conversationId)
	if err != nil {
		api.logger.Errorf("conversation: failed to list actions for %d: %v", conversationId, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load actions"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"conversationId": conversationId, "actions": actions})
}
