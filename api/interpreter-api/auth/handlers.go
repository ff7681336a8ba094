// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package auth_api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/interpreter-api/pkg/commons"
)

const principalKey = "authPrincipal"

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// AuthHttpApi exposes the auth surface over HTTP and the bearer middleware
// used by the protected REST reads.
type AuthHttpApi interface {
	Register(ctx *gin.Context)
	Login(ctx *gin.Context)
	Refresh(ctx *gin.Context)
	Me(ctx *gin.Context)

	BearerMiddleware() gin.HandlerFunc
}

type authHttpApi struct {
	service AuthService
	logger  commons.Logger
}

func NewAuthHttpApi(service AuthService, logger commons.Logger) AuthHttpApi {
	return &authHttpApi{service: service, logger: logger}
}

func (api *authHttpApi) Register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := api.service.Register(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		api.logger.Warnf("auth: registration failed for %q: %v", req.Username, err)
		ctx.JSON(http.StatusConflict, gin.H{"error": "registration failed"})
		return
	}
	ctx.JSON(http.StatusCreated, user)
}

func (api *authHttpApi) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := api.service.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	ctx.JSON(http.StatusOK, pair)
}

func (api *authHttpApi) Refresh(ctx *gin.Context) {
	var req refreshRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := api.service.Refresh(ctx.Request.Context(), req.RefreshToken)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	ctx.JSON(http.StatusOK, pair)
}

func (api *authHttpApi) Me(ctx *gin.Context) {
	claims, ok := Principal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": claims.Id, "username": claims.Username})
}

// BearerMiddleware verifies the Authorization header and stores the claims on
// the request context for downstream handlers.
func (api *authHttpApi) BearerMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := api.service.VerifyAccessToken(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ctx.Set(principalKey, claims)
		ctx.Next()
	}
}

// Principal returns the verified claims stored by BearerMiddleware.
func Principal(ctx *gin.Context) (*TokenClaims, bool) {
	value, exists := ctx.Get(principalKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*TokenClaims)
	return claims, ok
}
