package handler

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"room-reservation-api/internal/auth"
	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/model"
)

type userRequest struct {
	Apelido string `json:"apelido"`
	Email   string `json:"email"`
	Senha   string `json:"senha"`
}

type userView struct {
	ID       string    `json:"_id"`
	Apelido  string    `json:"apelido"`
	Email    string    `json:"email"`
	CriadoEm time.Time `json:"criadoEm"`
}

func viewUser(u model.User) userView {
	return userView{ID: u.ID, Apelido: u.Name, Email: u.Email, CriadoEm: u.CreatedAt}
}

func validateEmail(email string) error {
	if email == "" {
		return &booking.ValidationError{Field: "email", Reason: "is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &booking.ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < auth.MinPasswordLength {
		return &booking.ValidationError{Field: "senha", Reason: "password too short"}
	}
	return nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(r, &req); err != nil {
		message(w, http.StatusBadRequest, "Dados incompletos.")
		return
	}
	req.Apelido = strings.TrimSpace(req.Apelido)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Apelido == "" {
		h.fail(w, r, &booking.ValidationError{Field: "apelido", Reason: "is required"})
		return
	}
	if err := validateEmail(req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validatePassword(req.Senha); err != nil {
		h.fail(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Senha)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Apelido,
	}
	// duplicate email maps to a generic 409 so addresses are not confirmed
	if err := h.users.CreateUser(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, messageResponse{Message: "Usuário cadastrado com sucesso!", ID: u.ID})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Users(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewUser(u))
	}
	respond(w, http.StatusOK, views)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.UserByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewUser(*u))
}

// updateUser applies the non-empty fields of the body to the caller's own
// account.
func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != caller(r) {
		h.fail(w, r, booking.ErrForbidden)
		return
	}
	var req userRequest
	if err := decode(r, &req); err != nil {
		message(w, http.StatusBadRequest, "Dados incompletos.")
		return
	}

	u, err := h.users.UserByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if name := strings.TrimSpace(req.Apelido); name != "" {
		u.Name = name
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		if err := validateEmail(email); err != nil {
			h.fail(w, r, err)
			return
		}
		u.Email = email
	}
	if req.Senha != "" {
		if err := validatePassword(req.Senha); err != nil {
			h.fail(w, r, err)
			return
		}
		if u.PasswordHash, err = auth.HashPassword(req.Senha); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	if err := h.users.UpdateUser(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewUser(*u))
}

// deleteUser removes the caller's account. Their reservations stay.
func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != caller(r) {
		h.fail(w, r, booking.ErrForbidden)
		return
	}
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.tokens.RevokeAllRefreshTokens(r.Context(), id); err != nil {
		h.logger.Printf("revoke tokens of deleted user %s: %v", id, err)
	}
	message(w, http.StatusOK, "Usuário excluído com sucesso.")
}
