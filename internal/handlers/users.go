package handlers

import (
	"errors"
	"net/http"
	"strings"

	"clipflow/internal/database"
	"clipflow/internal/logging"
)

const minPasswordLength = 8

type registerRequest struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool           `json:"success"`
	Token   string         `json:"token"`
	User    *database.User `json:"user"`
}

// Register creates a new account with the default editor role and
// returns a fresh token so the client is signed in immediately.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Fullname = strings.TrimSpace(req.Fullname)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Fullname == "":
		respondError(w, http.StatusBadRequest, "fullname is required")
		return
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	case len(req.Password) < minPasswordLength:
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Fullname, req.Email, req.Password, database.RoleEditor)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			respondError(w, http.StatusConflict, "an account with that email already exists")
			return
		}
		logging.Error("handlers: create user: %v", err)
		respondError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		logging.Error("handlers: sign token: %v", err)
		respondError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	logging.Info("handlers: registered account %s", user.Email)
	respondJSON(w, http.StatusCreated, authResponse{Success: true, Token: token, User: user})
}

// Login exchanges credentials for a token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.db.ValidateCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		logging.Error("handlers: validate credentials: %v", err)
		respondError(w, http.StatusInternalServerError, "could not sign in")
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		logging.Error("handlers: sign token: %v", err)
		respondError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	respondJSON(w, http.StatusOK, authResponse{Success: true, Token: token, User: user})
}

// Logout acknowledges the client discarding its token. Tokens are
// stateless, so there is nothing to revoke server side before expiry.
func (h *Handlers) Logout(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Me returns the account behind the current token.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    CurrentUser(r),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword rotates the caller's password after verifying the
// current one.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user := CurrentUser(r)
	if _, err := h.db.ValidateCredentials(r.Context(), user.Email, req.CurrentPassword); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		logging.Error("handlers: verify password: %v", err)
		respondError(w, http.StatusInternalServerError, "could not change password")
		return
	}

	if err := h.db.UpdatePassword(r.Context(), user.ID, req.NewPassword); err != nil {
		logging.Error("handlers: update password: %v", err)
		respondError(w, http.StatusInternalServerError, "could not change password")
		return
	}

	logging.Info("handlers: password changed for %s", user.Email)
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
