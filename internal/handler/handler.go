package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"room-reservation-api/internal/auth"
	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/middleware"
	"room-reservation-api/internal/model"
	"room-reservation-api/internal/store"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	Users(ctx context.Context) ([]model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	DeleteUser(ctx context.Context, id string) error
}

type TokenStore interface {
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	RefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

type Config struct {
	Secret      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Identity    middleware.IdentitySource
	Limiter     *middleware.RateLimiter
	CORSOrigins []string
	Logger      *log.Logger
}

// Handler serves the REST surface of the booking service.
type Handler struct {
	router       *mux.Router
	reservations *booking.Controller
	users        UserStore
	tokens       TokenStore
	cfg          Config
	logger       *log.Logger
}

func New(ctl *booking.Controller, users UserStore, tokens TokenStore, cfg Config) *Handler {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = auth.DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = auth.DefaultRefreshTTL
	}
	if cfg.Identity == nil {
		cfg.Identity = middleware.BearerIdentity{Secret: cfg.Secret}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	h := &Handler{
		router:       mux.NewRouter(),
		reservations: ctl,
		users:        users,
		tokens:       tokens,
		cfg:          cfg,
		logger:       cfg.Logger,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) Router() *mux.Router { return h.router }

// Handler wraps the router with CORS and access logging.
func (h *Handler) Handler() http.Handler {
	origins := h.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-User-ID"}),
	)
	return handlers.LoggingHandler(os.Stdout, cors(h.router))
}

func (h *Handler) registerRoutes() {
	r := h.router
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	r.Handle("/cadastro", h.limited(h.register)).Methods(http.MethodPost)
	r.Handle("/login", h.limited(h.login)).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	r.Handle("/logout", h.authed(h.logout)).Methods(http.MethodPost)

	r.Handle("/reservar", h.authed(h.reserve)).Methods(http.MethodPost)
	r.HandleFunc("/reservas", h.listReservations).Methods(http.MethodGet)
	r.HandleFunc("/reservas/{data}", h.listReservationsByDate).Methods(http.MethodGet)
	r.HandleFunc("/reserva/{id}", h.getReservation).Methods(http.MethodGet)
	r.Handle("/reservas/{id}", h.authed(h.deleteReservation)).Methods(http.MethodDelete)
	r.HandleFunc("/salas/{sala}/disponibilidade", h.availability).Methods(http.MethodGet)

	r.Handle("/usuarios", h.authed(h.listUsers)).Methods(http.MethodGet)
	r.Handle("/usuarios/{id}", h.authed(h.getUser)).Methods(http.MethodGet)
	r.Handle("/usuarios/{id}", h.authed(h.updateUser)).Methods(http.MethodPut)
	r.Handle("/usuarios/{id}", h.authed(h.deleteUser)).Methods(http.MethodDelete)
}

func (h *Handler) authed(fn http.HandlerFunc) http.Handler {
	return middleware.Identify(h.cfg.Identity)(fn)
}

func (h *Handler) limited(fn http.HandlerFunc) http.Handler {
	if h.cfg.Limiter == nil {
		return fn
	}
	return middleware.RateLimitHTTP(h.cfg.Limiter)(fn)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func message(w http.ResponseWriter, status int, msg string) {
	respond(w, status, messageResponse{Message: msg})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// fail maps err to a status code and a client-facing message. Only
// validation messages are echoed; everything else gets a fixed text.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		message(w, http.StatusBadRequest, vErr.Error())
		return
	case errors.Is(err, booking.ErrConflict):
		message(w, http.StatusConflict, "Sala já reservada para esse horário.")
		return
	case errors.Is(err, store.ErrDuplicateEmail):
		message(w, http.StatusConflict, "Não foi possível concluir o cadastro.")
		return
	case errors.Is(err, booking.ErrForbidden):
		message(w, http.StatusForbidden, "Operação não permitida.")
		return
	case errors.Is(err, booking.ErrNotFound):
		message(w, http.StatusNotFound, "Reserva não encontrada.")
		return
	case errors.Is(err, store.ErrNotFound):
		message(w, http.StatusNotFound, "Usuário não encontrado.")
		return
	}
	h.logger.Printf("%s %s: %s: %v", r.Method, r.URL.Path, booking.Kind(err), err)
	message(w, http.StatusInternalServerError, "Erro interno do servidor.")
}

func caller(r *http.Request) string {
	uid, _ := middleware.UserID(r.Context())
	return uid
}
