package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"clipflow/internal/database"
	"clipflow/internal/logging"
	"clipflow/internal/metrics"
)

// tokenLifetime is how long an issued token stays valid.
const tokenLifetime = 24 * time.Hour

// claims is the JWT payload carried by every authenticated request.
type claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type contextKey int

const userContextKey contextKey = 0

// CurrentUser returns the authenticated user stored by RequireAuth.
func CurrentUser(r *http.Request) *database.User {
	user, _ := r.Context().Value(userContextKey).(*database.User)
	return user
}

// issueToken signs a new HS256 token for the user.
func (h *Handlers) issueToken(user *database.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	})
	return token.SignedString([]byte(h.cfg.TokenSecret))
}

// extractToken pulls the bearer token from the Authorization header,
// falling back to a token query parameter for clients that cannot set
// headers, like the native video element and websocket dials.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// RequireAuth validates the request's token and loads the account it
// names into the request context. Requests without a valid token for a
// live account get a 401.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.AuthAttemptsTotal.WithLabelValues("missing").Inc()
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		var parsed claims
		_, err := jwt.ParseWithClaims(tokenStr, &parsed, func(*jwt.Token) (interface{}, error) {
			return []byte(h.cfg.TokenSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
			logging.Debug("auth: token rejected: %v", err)
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, err := h.db.GetUserByID(r.Context(), parsed.UserID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				metrics.AuthAttemptsTotal.WithLabelValues("unknown_user").Inc()
				respondError(w, http.StatusUnauthorized, "account no longer exists")
				return
			}
			respondError(w, http.StatusInternalServerError, "could not verify account")
			return
		}

		metrics.AuthAttemptsTotal.WithLabelValues("ok").Inc()
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// canUpload restricts uploads to editors and administrators. Viewer
// accounts watch, they do not publish.
func canUpload(user *database.User) bool {
	return user.Role == database.RoleEditor || user.Role == database.RoleAdmin
}

// canTouchVideo reports whether the user may view or stream the video:
// its owner always, and otherwise any account above the viewer role.
func canTouchVideo(user *database.User, video *database.Video) bool {
	if user.ID == video.Owner {
		return true
	}
	return user.Role != database.RoleViewer
}

// canDeleteVideo restricts deletion to the owner and administrators.
func canDeleteVideo(user *database.User, video *database.Video) bool {
	return user.ID == video.Owner || user.Role == database.RoleAdmin
}
