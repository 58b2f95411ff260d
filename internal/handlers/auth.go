package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-scheduler/internal/auth"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/middleware"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	validate       *validator.Validate
	cache          *auth.VerificationCache
}

// NewAuthHandler creates a new authentication handler. cache, when set, is
// cleared for a user whose credentials change.
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, validate *validator.Validate, cache *auth.VerificationCache) *AuthHandler {
	if validate == nil {
		validate = scheduling.NewValidator()
	}
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		validate:       validate,
		cache:          cache,
	}
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := readJSON(w, r, &loginReq, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, loginReq); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), loginReq.Username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.WithError(err).Error("Failed to look up user")
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if !user.IsActive {
		http.Error(w, "Account is deactivated", http.StatusUnauthorized)
		return
	}

	if !h.authService.CheckPassword(loginReq.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	h.writeTokens(w, r, user, http.StatusOK)

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("Failed to update last login")
	}
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerReq models.RegisterRequest
	if err := readJSON(w, r, &registerReq, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, registerReq); err != nil {
		writeError(w, r, err)
		return
	}
	if registerReq.Role == "" {
		registerReq.Role = models.RoleDriver
	}
	if !models.IsValidRole(registerReq.Role) {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}
	// Self-registration creates drivers; elevated roles are granted by an admin.
	if registerReq.Role != models.RoleDriver {
		caller, ok := middleware.GetUserFromContext(r.Context())
		if !ok || !models.Satisfies(models.RoleAdmin, caller.Role) {
			http.Error(w, "Only an admin may assign this role", http.StatusForbidden)
			return
		}
	}

	if _, err := h.userCollection.FindUserByUsername(r.Context(), registerReq.Username); err == nil {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}
	if _, err := h.userCollection.FindUserByEmail(r.Context(), registerReq.Email); err == nil {
		http.Error(w, "Email already exists", http.StatusConflict)
		return
	}

	passwordHash, err := h.authService.HashPassword(registerReq.Password)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     registerReq.Username,
		Email:        registerReq.Email,
		PasswordHash: passwordHash,
		Role:         registerReq.Role,
		FirstName:    registerReq.FirstName,
		LastName:     registerReq.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		log.WithError(err).Error("Failed to create user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	log.WithFields(log.Fields{"user_id": user.ID.Hex(), "role": user.Role}).Info("User registered")
	h.writeTokens(w, r, &user, http.StatusCreated)
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		http.Error(w, "Failed to generate refresh token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, models.LoginResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         *user,
	})
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var updateReq struct {
		FirstName string `json:"first_name" validate:"max=100"`
		LastName  string `json:"last_name" validate:"max=100"`
		Email     string `json:"email" validate:"omitempty,email"`
	}
	if err := readJSON(w, r, &updateReq, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, updateReq); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if updateReq.FirstName != "" {
		user.FirstName = updateReq.FirstName
	}
	if updateReq.LastName != "" {
		user.LastName = updateReq.LastName
	}
	if updateReq.Email != "" {
		existingUser, err := h.userCollection.FindUserByEmail(r.Context(), updateReq.Email)
		if err == nil && existingUser.ID.Hex() != claims.UserID {
			http.Error(w, "Email already exists", http.StatusConflict)
			return
		}
		user.Email = updateReq.Email
	}

	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}

// ChangePassword changes the current user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	var passwordReq struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,min=8"`
	}
	if err := readJSON(w, r, &passwordReq, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, passwordReq); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if !h.authService.CheckPassword(passwordReq.CurrentPassword, user.PasswordHash) {
		http.Error(w, "Current password is incorrect", http.StatusUnauthorized)
		return
	}

	newPasswordHash, err := h.authService.HashPassword(passwordReq.NewPassword)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user.PasswordHash = newPasswordHash
	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(claims.UserID)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}
