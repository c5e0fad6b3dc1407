package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/username/gainfolio/backend/src/config"
	"github.com/username/gainfolio/backend/src/logger"
	"github.com/username/gainfolio/backend/src/utils"
)

const csrfCookieName = "_csrf_token"

// generateCSRFToken returns a random nonce signed with the shared auth key,
// encoded as nonce.signature.
func generateCSRFToken(authKey []byte) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("error generating CSRF nonce: %w", err)
	}
	mac := hmac.New(sha256.New, authKey)
	mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(nonce) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func validateCSRFToken(authKey []byte, token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return false
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, authKey)
	mac.Write(nonce)
	return hmac.Equal(sig, mac.Sum(nil))
}

// GetCSRFToken issues a signed token in both a cookie and the response body.
// Mutating requests must echo it back in the X-CSRF-Token header.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := generateCSRFToken(config.Cfg.CSRFAuthKey)
	if err != nil {
		logger.L.Error("Failed to generate CSRF token", "error", err)
		utils.SendJSONError(w, "Failed to generate CSRF token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		MaxAge:   3600,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", token)
	json.NewEncoder(w).Encode(map[string]string{
		"csrfToken": token,
	})
}

// CSRFMiddleware enforces the double-submit check: the X-CSRF-Token header
// must match the cookie and carry a valid signature. Safe methods pass
// through untouched.
func CSRFMiddleware(authKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, err := r.Cookie(csrfCookieName)
			if headerToken == "" || err != nil || headerToken != cookie.Value {
				logger.L.Warn("CSRF validation failed: header/cookie mismatch",
					"method", r.Method, "path", r.URL.Path, "origin", r.Header.Get("Origin"))
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			if !validateCSRFToken(authKey, headerToken) {
				logger.L.Warn("CSRF validation failed: bad token signature",
					"method", r.Method, "path", r.URL.Path)
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
