package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/username/gainfolio/backend/src/config"
	"github.com/username/gainfolio/backend/src/database"
	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/model"
	"github.com/username/gainfolio/backend/src/security"
	"github.com/username/gainfolio/backend/src/security/validation"
	"github.com/username/gainfolio/backend/src/services"
	"github.com/username/gainfolio/backend/src/utils"
)

// Context keys use an unexported type to avoid collisions with other packages.
type contextKey string

const userIDContextKey contextKey = "userID"

type UserHandler struct {
	authService  *security.AuthService
	emailService services.EmailService
}

func NewUserHandler(authService *security.AuthService, emailService services.EmailService) *UserHandler {
	return &UserHandler{
		authService:  authService,
		emailService: emailService,
	}
}

// GetUserIDFromContext extracts the authenticated user ID placed in the
// request context by AuthMiddleware.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func generateSecureToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating secure token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(validation.StripUnprintable(req.Username))
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if len(req.Username) < 3 || len(req.Username) > 50 {
		utils.SendJSONError(w, "Username must be between 3 and 50 characters", http.StatusBadRequest)
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		utils.SendJSONError(w, "A valid email address is required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		utils.SendJSONError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.L.Error("Failed to hash password during registration", "error", err)
		utils.SendJSONError(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	verificationToken, err := generateSecureToken(32)
	if err != nil {
		logger.L.Error("Failed to generate verification token", "error", err)
		utils.SendJSONError(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		Password:     hashedPassword,
		AuthProvider: "local",
	}
	user.EmailVerificationToken.String = verificationToken
	user.EmailVerificationToken.Valid = true
	user.EmailVerificationTokenExpiresAt.Time = time.Now().Add(config.Cfg.VerificationTokenExpiry)
	user.EmailVerificationTokenExpiresAt.Valid = true

	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			utils.SendJSONError(w, "Username is already taken", http.StatusConflict)
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			utils.SendJSONError(w, "An account with this email already exists", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user", "username", req.Username, "error", err)
		utils.SendJSONError(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	// Registration succeeds even if the email cannot be sent; the user can
	// request a new verification link later.
	if err := h.emailService.SendVerificationEmail(user.Email, user.Username, verificationToken); err != nil {
		logger.L.Error("Failed to send verification email", "userID", user.ID, "error", err)
	}

	logger.L.Info("User registered", "userID", user.ID, "username", user.Username)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Registration successful. Please check your email to verify your account.",
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByUsername(database.DB, strings.TrimSpace(req.Username))
	if err != nil {
		logger.L.Warn("Login attempt for unknown username", "username", req.Username)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if user.AuthProvider != "local" {
		logger.L.Warn("Password login attempt for OAuth account", "userID", user.ID, "provider", user.AuthProvider)
		utils.SendJSONError(w, "This account uses Google sign-in", http.StatusUnauthorized)
		return
	}

	if err := h.authService.CompareHashAndPassword(user.Password, req.Password); err != nil {
		logger.L.Warn("Login attempt with wrong password", "userID", user.ID)
		utils.SendJSONError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if !user.IsEmailVerified {
		utils.SendJSONError(w, "Email address not verified. Please check your inbox.", http.StatusForbidden)
		return
	}

	accessToken, err := h.authService.GenerateToken(fmt.Sprintf("%d", user.ID))
	if err != nil {
		logger.L.Error("Failed to generate access token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		logger.L.Error("Failed to generate refresh token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		logger.L.Error("Failed to create session", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User logged in", "userID", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":         accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int64(config.Cfg.AccessTokenExpiry.Seconds()),
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		utils.SendJSONError(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	session, err := model.GetSessionByRefreshToken(database.DB, req.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh attempt with invalid token", "error", err)
		utils.SendJSONError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	accessToken, err := h.authService.GenerateToken(fmt.Sprintf("%d", session.UserID))
	if err != nil {
		logger.L.Error("Failed to generate access token on refresh", "userID", session.UserID, "error", err)
		utils.SendJSONError(w, "Failed to refresh session", http.StatusInternalServerError)
		return
	}
	newRefreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		logger.L.Error("Failed to generate refresh token on refresh", "userID", session.UserID, "error", err)
		utils.SendJSONError(w, "Failed to refresh session", http.StatusInternalServerError)
		return
	}

	expiresAt := time.Now().Add(config.Cfg.RefreshTokenExpiry)
	if err := model.RotateSessionTokens(database.DB, session.ID, accessToken, newRefreshToken, expiresAt); err != nil {
		logger.L.Error("Failed to rotate session tokens", "sessionID", session.ID, "error", err)
		utils.SendJSONError(w, "Failed to refresh session", http.StatusInternalServerError)
		return
	}

	logger.L.Debug("Session refreshed", "userID", session.UserID, "sessionID", session.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":         accessToken,
		"refresh_token": newRefreshToken,
		"expires_in":    int64(config.Cfg.AccessTokenExpiry.Seconds()),
	})
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" || token == authHeader {
		utils.SendJSONError(w, "Authorization header with Bearer token required", http.StatusUnauthorized)
		return
	}

	if err := model.DeleteSessionByToken(database.DB, token); err != nil {
		logger.L.Error("Failed to delete session on logout", "error", err)
		utils.SendJSONError(w, "Failed to log out", http.StatusInternalServerError)
		return
	}

	if userID, ok := GetUserIDFromContext(r.Context()); ok {
		logger.L.Info("User logged out", "userID", userID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.SendJSONError(w, "Verification token is required", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByVerificationToken(database.DB, token)
	if err != nil {
		logger.L.Warn("Email verification with invalid or expired token")
		utils.SendJSONError(w, "Invalid or expired verification token", http.StatusBadRequest)
		return
	}

	if err := model.MarkEmailVerified(database.DB, user.ID); err != nil {
		logger.L.Error("Failed to mark email verified", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to verify email", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Email verified", "userID", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Email verified successfully. You can now log in.",
	})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordResetHandler always answers with the same message so the
// endpoint cannot be used to probe which emails are registered.
func (h *UserHandler) RequestPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		utils.SendJSONError(w, "email is required", http.StatusBadRequest)
		return
	}

	genericResponse := func() {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "If an account with that email exists, a password reset link has been sent.",
		})
	}

	user, err := model.GetUserByEmail(database.DB, strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		logger.L.Debug("Password reset requested for unknown email")
		genericResponse()
		return
	}
	if user.AuthProvider != "local" {
		logger.L.Warn("Password reset requested for OAuth account", "userID", user.ID)
		genericResponse()
		return
	}

	resetToken, err := generateSecureToken(32)
	if err != nil {
		logger.L.Error("Failed to generate password reset token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to process request", http.StatusInternalServerError)
		return
	}

	expiresAt := time.Now().Add(config.Cfg.PasswordResetTokenExpiry)
	if err := model.SetPasswordResetToken(database.DB, user.ID, resetToken, expiresAt); err != nil {
		logger.L.Error("Failed to store password reset token", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to process request", http.StatusInternalServerError)
		return
	}

	if err := h.emailService.SendPasswordResetEmail(user.Email, user.Username, resetToken); err != nil {
		logger.L.Error("Failed to send password reset email", "userID", user.ID, "error", err)
	}

	logger.L.Info("Password reset requested", "userID", user.ID)
	genericResponse()
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *UserHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		utils.SendJSONError(w, "token and new_password are required", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < 8 {
		utils.SendJSONError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByPasswordResetToken(database.DB, req.Token)
	if err != nil {
		logger.L.Warn("Password reset with invalid or expired token")
		utils.SendJSONError(w, "Invalid or expired reset token", http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		logger.L.Error("Failed to hash new password", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	if err := model.UpdatePassword(database.DB, user.ID, hashedPassword); err != nil {
		logger.L.Error("Failed to update password", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}

	// Sessions issued under the old password stop working immediately.
	if err := model.DeleteSessionsByUserID(database.DB, user.ID); err != nil {
		logger.L.Error("Failed to invalidate sessions after password reset", "userID", user.ID, "error", err)
	}

	logger.L.Info("Password reset completed", "userID", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Password reset successfully. Please log in with your new password.",
	})
}
