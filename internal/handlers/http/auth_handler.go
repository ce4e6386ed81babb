package http

import (
	"net/http"
	"strings"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/core/services"
	"watchparty/pkg/errors"
	"watchparty/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService    services.AuthService
	userRepo       ports.UserRepository
	accessTokenTTL time.Duration
}

func NewAuthHandler(authService services.AuthService, userRepo ports.UserRepository, accessTokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userRepo:       userRepo,
		accessTokenTTL: accessTokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
		api.POST("/refresh", h.RefreshToken)
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=50"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Avatar   string `json:"avatar" binding:"max=512"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=2048"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	user := &domain.User{
		ID:        domain.UserID(utils.NewUserID()),
		Email:     req.Email,
		Name:      req.Name,
		AvatarURL: req.Avatar,
		CreatedAt: time.Now(),
	}

	// TODO: store a password hash once credential storage lands
	if err := h.userRepo.Create(c.Request.Context(), user); err != nil {
		if err == domain.ErrUserExists {
			c.Error(errors.NewConflictError("email already registered"))
			return
		}
		c.Error(errors.NewInternalError("failed to create user"))
		return
	}

	accessToken, err := h.authService.GenerateToken(user.ID, user.Email, user.Name)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token"))
		return
	}

	refreshToken, err := h.authService.GenerateRefreshToken(user.ID)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate refresh token"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":       user.ID,
		"name":          user.Name,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(h.accessTokenTTL / time.Second),
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.Error(errors.NewUnauthorizedError("invalid credentials"))
		return
	}

	accessToken, err := h.authService.GenerateToken(user.ID, user.Email, user.Name)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token"))
		return
	}

	refreshToken, err := h.authService.GenerateRefreshToken(user.ID)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate refresh token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       user.ID,
		"name":          user.Name,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(h.accessTokenTTL / time.Second),
	})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	claims, err := h.authService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Error(errors.NewUnauthorizedError("invalid refresh token"))
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.Error(errors.NewUnauthorizedError("unknown user"))
		return
	}

	accessToken, err := h.authService.GenerateToken(user.ID, user.Email, user.Name)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"expires_in":   int(h.accessTokenTTL / time.Second),
	})
}
