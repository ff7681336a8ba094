// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package auth_api

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	internal_repository "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/repository"
	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/utils"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenClaims is the bearer identity carried by every signed token.
type TokenClaims struct {
	Id        uint64 `json:"id"`
	Username  string `json:"username"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// TokenPair is the login/refresh response body.
type TokenPair struct {
	AccessToken  string                `json:"accessToken"`
	RefreshToken string                `json:"refreshToken"`
	User         *internal_entity.User `json:"user"`
}

// AuthService issues and verifies the JWTs that gate the control channel and
// the HTTP surface.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*internal_entity.User, error)
	Login(ctx context.Context, username, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	// VerifyAccessToken validates a bearer token and returns its claims.
	VerifyAccessToken(token string) (*TokenClaims, error)
}

type authService struct {
	cfg    *config.AppConfig
	users  internal_repository.UserRepository
	logger commons.Logger
}

func NewAuthService(cfg *config.AppConfig, users internal_repository.UserRepository, logger commons.Logger) AuthService {
	return &authService{cfg: cfg, users: users, logger: logger}
}

func (s *authService) Register(ctx context.Context, username, password string) (*internal_entity.User, error) {
	if utils.IsEmpty(username) || utils.IsEmpty(password) {
		return nil, fmt.Errorf("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &internal_entity.User{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return s.issuePair(user)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.verify(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, claims.Id)
	if err != nil {
		return nil, fmt.Errorf("user no longer exists: %w", err)
	}
	return s.issuePair(user)
}

func (s *authService) VerifyAccessToken(token string) (*TokenClaims, error) {
	return s.verify(token, tokenTypeAccess)
}

func (s *authService) issuePair(user *internal_entity.User) (*TokenPair, error) {
	access, err := s.sign(user, tokenTypeAccess,
		time.Duration(s.cfg.AccessTokenTtlMinute)*time.Minute)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, tokenTypeRefresh,
		time.Duration(s.cfg.RefreshTokenTtlHour)*time.Hour)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}

func (s *authService) sign(user *internal_entity.User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		Id:        user.Id,
		Username:  user.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.Id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return token, nil
}

func (s *authService) verify(token, expectedType string) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("wrong token type: expected %s", expectedType)
	}
	return claims, nil
}
