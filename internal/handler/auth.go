package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"room-reservation-api/internal/auth"
	"room-reservation-api/internal/store"
)

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	ID           string `json:"_id"`
	Apelido      string `json:"apelido"`
	Email        string `json:"email"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

const badCredentials = "Email ou senha inválidos."

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil || req.Email == "" || req.Senha == "" {
		message(w, http.StatusBadRequest, "Email e senha são obrigatórios.")
		return
	}

	u, err := h.users.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, store.ErrNotFound) {
		message(w, http.StatusUnauthorized, badCredentials)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Senha) {
		message(w, http.StatusUnauthorized, badCredentials)
		return
	}

	access, refresh, err := h.issueTokens(r, u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, loginResponse{
		ID:           u.ID,
		Apelido:      u.Name,
		Email:        u.Email,
		Token:        access,
		RefreshToken: refresh,
	})
}

// refresh trades a refresh token for a new pair. Presenting a revoked
// token revokes every token of its user.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil || req.RefreshToken == "" {
		message(w, http.StatusBadRequest, "refreshToken é obrigatório.")
		return
	}

	ctx := r.Context()
	old, err := h.tokens.RefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if errors.Is(err, store.ErrNotFound) {
		message(w, http.StatusUnauthorized, "Sessão inválida.")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if old.Revoked {
		h.logger.Printf("revoked refresh token %s reused, revoking all for user %s", old.ID, old.UserID)
		if err := h.tokens.RevokeAllRefreshTokens(ctx, old.UserID); err != nil {
			h.logger.Printf("revoke tokens of user %s: %v", old.UserID, err)
		}
		message(w, http.StatusUnauthorized, "Sessão inválida.")
		return
	}
	if time.Now().After(old.ExpiresAt) {
		message(w, http.StatusUnauthorized, "Sessão expirada.")
		return
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	err = h.tokens.RotateRefreshToken(ctx, old.ID, uuid.New().String(), old.UserID, hash, time.Now().Add(h.cfg.RefreshTTL))
	if errors.Is(err, store.ErrNotFound) {
		// lost a race with another rotation of the same token
		message(w, http.StatusUnauthorized, "Sessão inválida.")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	access, err := auth.MakeToken(old.UserID, h.cfg.Secret, h.cfg.AccessTTL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, tokenResponse{Token: access, RefreshToken: raw})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.RevokeAllRefreshTokens(r.Context(), caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issueTokens(r *http.Request, uid string) (access, refresh string, err error) {
	access, err = auth.MakeToken(uid, h.cfg.Secret, h.cfg.AccessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return "", "", err
	}
	if _, err := h.tokens.CreateRefreshToken(r.Context(), uid, hash, time.Now().Add(h.cfg.RefreshTTL)); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
