package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/petdonor/backend/internal/auth"
	"github.com/petdonor/backend/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "petdonor_user_id"

// msgIncorrectCredentials is returned for both unknown accounts and wrong
// passwords so callers cannot enumerate registered logins or emails.
const msgIncorrectCredentials = "incorrect login or password"

var (
	errMissingAuthService    = errors.New("auth service dependency required")
	errMissingUserRepository = errors.New("user repository dependency required")
)

// AuthService is the auth core as consumed by the HTTP boundary.
type AuthService interface {
	Register(ctx context.Context, login, email, password string) (auth.Credentials, error)
	Login(ctx context.Context, loginOrEmail, password string) (auth.Credentials, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, accessToken, refreshToken string) (auth.Credentials, error)
	SocialLogin(ctx context.Context, silentToken, clientInstanceID string) (string, auth.Credentials, error)
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
	SubjectOf(accessToken string) (int64, error)
}

// UserDirectory is the slice of account persistence the profile routes need.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
	Save(ctx context.Context, user *users.User) error
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Auth   AuthService
	Users  UserDirectory
	Logger *zap.Logger
}

// NewHTTPHandler builds the gin router for the auth and profile surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Auth == nil {
		return nil, errMissingAuthService
	}
	if deps.Users == nil {
		return nil, errMissingUserRepository
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		authService: deps.Auth,
		users:       deps.Users,
		logger:      logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)
	router.POST("/auth/refresh", handler.handleRefresh)
	router.POST("/auth/vk", handler.handleVKLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users/me", handler.handleCurrentUser)
	protected.PATCH("/users/me", handler.handleUpdateUser)
	protected.POST("/users/me/password", handler.handleChangePassword)

	return router, nil
}

type httpHandler struct {
	authService AuthService
	users       UserDirectory
	logger      *zap.Logger
}

type registerRequestPayload struct {
	Login    string `json:"login" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequestPayload struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequestPayload struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type vkLoginRequestPayload struct {
	SilentToken      string `json:"silent_token" binding:"required"`
	ClientInstanceID string `json:"client_instance_id"`
}

type tokenPairPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type vkLoginResponsePayload struct {
	Login        string `json:"login"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	credentials, err := h.authService.Register(c.Request.Context(), request.Login, request.Email, request.Password)
	if errors.Is(err, auth.ErrUserExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "login or email already exists"})
		return
	}
	if err != nil {
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenPairPayload{
		AccessToken:  credentials.AccessToken,
		RefreshToken: credentials.RefreshToken,
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	credentials, err := h.authService.Login(c.Request.Context(), request.Login, request.Password)
	if errors.Is(err, auth.ErrUserNotFound) || errors.Is(err, auth.ErrIncorrectPassword) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgIncorrectCredentials})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenPairPayload{
		AccessToken:  credentials.AccessToken,
		RefreshToken: credentials.RefreshToken,
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	err := h.authService.Logout(c.Request.Context(), token)
	if errors.Is(err, auth.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout_failed"})
		return
	}
	c.Status(http.StatusOK)
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	var request refreshRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	accessToken := auth.BearerToken(c.GetHeader("Authorization"))
	credentials, err := h.authService.Refresh(c.Request.Context(), accessToken, request.RefreshToken)
	if errors.Is(err, auth.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("token refresh failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenPairPayload{
		AccessToken:  credentials.AccessToken,
		RefreshToken: credentials.RefreshToken,
	})
}

func (h *httpHandler) handleVKLogin(c *gin.Context) {
	var request vkLoginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	login, credentials, err := h.authService.SocialLogin(c.Request.Context(), request.SilentToken, request.ClientInstanceID)
	if errors.Is(err, auth.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("vk login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vk_login_failed"})
		return
	}

	c.JSON(http.StatusOK, vkLoginResponsePayload{
		Login:        login,
		AccessToken:  credentials.AccessToken,
		RefreshToken: credentials.RefreshToken,
	})
}

type userResponsePayload struct {
	ID              int64   `json:"id"`
	Login           string  `json:"login"`
	Email           *string `json:"email,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	Surname         *string `json:"surname,omitempty"`
	Name            *string `json:"name,omitempty"`
	MiddleName      *string `json:"middle_name,omitempty"`
	AvatarURL       string  `json:"avatar_url"`
	VKUserName      *string `json:"vk_user_name,omitempty"`
	TGUserName      *string `json:"tg_user_name,omitempty"`
	CreatedAt       string  `json:"created_at"`
	LastActiveAt    string  `json:"last_active_at"`
	PasswordSet     bool    `json:"password_set"`
	EmailVisibility bool    `json:"email_visibility"`
	PhoneVisibility bool    `json:"phone_visibility"`
}

func newUserResponse(user *users.User) userResponsePayload {
	return userResponsePayload{
		ID:              user.ID,
		Login:           user.Login,
		Email:           user.Email,
		Phone:           user.Phone,
		Surname:         user.Surname,
		Name:            user.Name,
		MiddleName:      user.MiddleName,
		AvatarURL:       user.AvatarURL,
		VKUserName:      user.VKUserName,
		TGUserName:      user.TGUserName,
		CreatedAt:       user.CreatedAt.UTC().Format(time.RFC3339),
		LastActiveAt:    user.LastActiveAt.UTC().Format(time.RFC3339),
		PasswordSet:     user.PasswordSet,
		EmailVisibility: user.EmailVisibility,
		PhoneVisibility: user.PhoneVisibility,
	}
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type updateUserRequestPayload struct {
	Phone           *string `json:"phone"`
	Surname         *string `json:"surname"`
	Name            *string `json:"name"`
	MiddleName      *string `json:"middle_name"`
	VKUserName      *string `json:"vk_user_name"`
	TGUserName      *string `json:"tg_user_name"`
	EmailVisibility *bool   `json:"email_visibility"`
	PhoneVisibility *bool   `json:"phone_visibility"`
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	var request updateUserRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if request.Phone != nil {
		user.Phone = request.Phone
	}
	if request.Surname != nil {
		user.Surname = request.Surname
	}
	if request.Name != nil {
		user.Name = request.Name
	}
	if request.MiddleName != nil {
		user.MiddleName = request.MiddleName
	}
	if request.VKUserName != nil {
		user.VKUserName = request.VKUserName
	}
	if request.TGUserName != nil {
		user.TGUserName = request.TGUserName
	}
	if request.EmailVisibility != nil {
		user.EmailVisibility = *request.EmailVisibility
	}
	if request.PhoneVisibility != nil {
		user.PhoneVisibility = *request.PhoneVisibility
	}

	if err := h.users.Save(c.Request.Context(), user); err != nil {
		h.logger.Error("profile update failed", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

type changePasswordRequestPayload struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var request changePasswordRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID := c.GetInt64(userIDContextKey)
	err := h.authService.ChangePassword(c.Request.Context(), userID, request.OldPassword, request.NewPassword)
	if errors.Is(err, auth.ErrIncorrectPassword) {
		c.JSON(http.StatusConflict, gin.H{"error": "old password does not match"})
		return
	}
	if errors.Is(err, auth.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("password change failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "password_change_failed"})
		return
	}

	c.Status(http.StatusOK)
}

func (h *httpHandler) currentUser(c *gin.Context) (*users.User, bool) {
	userID := c.GetInt64(userIDContextKey)
	user, err := h.users.FindByID(c.Request.Context(), userID)
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("user lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return nil, false
	}
	return user, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	userID, err := h.authService.SubjectOf(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}
