package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"treenote/internal/auth"
	"treenote/internal/db"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
	maxPasswordLen = 100
)

// ----- Auth -----

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type MeResponse struct {
	UserID    string     `json:"userId"`
	Username  string     `json:"username"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (req CredentialsRequest) validate() error {
	if n := utf8.RuneCountInString(req.Username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if n := utf8.RuneCountInString(req.Password); n < minPasswordLen || n > maxPasswordLen {
		return fmt.Errorf("password must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	return nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	policy := h.cfg.AdmissionPolicy()

	// Cheap early refusal; RegisterUser re-checks inside its transaction.
	count, err := h.db.CountUsers(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if !policy.Admits(count) {
		writeError(w, http.StatusForbidden, "Registration is disabled", nil)
		return
	}

	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input", err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	user, err := h.db.RegisterUser(r.Context(), req.Username, hash, policy.Admits)
	switch {
	case errors.Is(err, db.ErrRegistrationClosed):
		writeError(w, http.StatusForbidden, "Registration is disabled", nil)
		return
	case errors.Is(err, db.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "Username already taken", nil)
		return
	case err != nil:
		h.writeEngineError(w, r, err)
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.log.Info().Str("user", user.ID).Str("username", user.Username).Msg("user registered")
	writeJSON(w, http.StatusCreated, AuthResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required", nil)
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	resp := MeResponse{
		UserID:   user.ID,
		Username: user.Username,
	}
	if claims := ClaimsFromContext(r.Context()); claims != nil && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}
