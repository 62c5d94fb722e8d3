package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/handler"
	"room-reservation-api/internal/middleware"
	"room-reservation-api/internal/model"
	"room-reservation-api/internal/store"
)

const secret = "test-secret"

type memUsers struct {
	mu   sync.Mutex
	byID map[string]model.User
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]model.User{}} }

func (m *memUsers) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if other.Email == u.Email {
			return store.ErrDuplicateEmail
		}
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) Users(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memUsers) UserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) UserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) UpdateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; !ok {
		return store.ErrNotFound
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memTokens struct {
	mu     sync.Mutex
	byHash map[string]*model.RefreshToken
	seq    int
}

func newMemTokens() *memTokens { return &memTokens{byHash: map[string]*model.RefreshToken{}} }

func (m *memTokens) CreateRefreshToken(_ context.Context, userID, hash string, exp time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("rt-%d", m.seq)
	m.byHash[hash] = &model.RefreshToken{ID: id, UserID: userID, TokenHash: hash, ExpiresAt: exp}
	return id, nil
}

func (m *memTokens) RefreshTokenByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.byHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (m *memTokens) RotateRefreshToken(_ context.Context, oldID, newID, userID, newHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.byHash {
		if rt.ID == oldID && !rt.Revoked {
			rt.Revoked = true
			rt.ReplacedBy = &newID
			m.byHash[newHash] = &model.RefreshToken{ID: newID, UserID: userID, TokenHash: newHash, ExpiresAt: exp}
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memTokens) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.byHash {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (m *memTokens) live(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rt := range m.byHash {
		if rt.UserID == userID && !rt.Revoked {
			n++
		}
	}
	return n
}

type fixture struct {
	h      *handler.Handler
	users  *memUsers
	tokens *memTokens
	rs     *booking.MemoryStore
}

func setup(t *testing.T, identity middleware.IdentitySource) *fixture {
	t.Helper()
	f := &fixture{users: newMemUsers(), tokens: newMemTokens(), rs: booking.NewMemoryStore()}
	f.h = handler.New(booking.NewController(f.rs), f.users, f.tokens, handler.Config{
		Secret:   secret,
		Identity: identity,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.Router().ServeHTTP(rec, req)
	return rec
}

type session struct {
	ID           string `json:"_id"`
	Apelido      string `json:"apelido"`
	Email        string `json:"email"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (f *fixture) signUp(t *testing.T, nick, email string) session {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/cadastro", "", map[string]string{
		"apelido": nick, "email": email, "senha": "testpass123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": email, "senha": "testpass123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	require.NotEmpty(t, s.Token)
	return s
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

var morning = map[string]string{
	"sala": "A1", "dataInicio": "2099-03-10", "horarioInicio": "09:00", "horarioFim": "10:00", "finalidade": "aula",
}

func TestHealth(t *testing.T) {
	f := setup(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRegisterValidation(t *testing.T) {
	f := setup(t, nil)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"empty nickname", map[string]string{"apelido": "", "email": "a@b.com", "senha": "testpass123"}},
		{"empty email", map[string]string{"apelido": "X", "email": "", "senha": "testpass123"}},
		{"bad email", map[string]string{"apelido": "X", "email": "not-an-email", "senha": "testpass123"}},
		{"short password", map[string]string{"apelido": "X", "email": "a@b.com", "senha": "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/cadastro", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	f := setup(t, nil)
	f.signUp(t, "ana", "ana@test.com")

	rec := f.do(t, http.MethodPost, "/cadastro", "", map[string]string{
		"apelido": "outra", "email": "ANA@test.com", "senha": "testpass123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginFailures(t *testing.T) {
	f := setup(t, nil)
	f.signUp(t, "ana", "ana@test.com")

	rec := f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@test.com", "senha": "wrongpassword"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "nobody@test.com", "senha": "testpass123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@test.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveRequiresIdentity(t *testing.T) {
	f := setup(t, nil)
	rec := f.do(t, http.MethodPost, "/reservar", "", morning)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the self-asserted header is not trusted unless configured
	req := httptest.NewRequest(http.MethodPost, "/reservar", bytes.NewBufferString(`{"sala":"A1","data":"2099-03-10"}`))
	req.Header.Set("X-User-ID", "someone")
	rec = httptest.NewRecorder()
	f.h.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReserveAndConflict(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	bia := f.signUp(t, "bia", "bia@test.com")

	rec := f.do(t, http.MethodPost, "/reservar", ana.Token, morning)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[struct {
		Message string         `json:"message"`
		Reserva map[string]any `json:"reserva"`
	}](t, rec)
	assert.Equal(t, "A1", created.Reserva["sala"])
	assert.Equal(t, "09:00", created.Reserva["horarioInicio"])
	assert.Equal(t, "2099-03-10", created.Reserva["dataFim"])

	overlapping := map[string]string{
		"sala": "A1", "dataInicio": "2099-03-10", "horarioInicio": "09:30", "horarioFim": "10:30",
	}
	rec = f.do(t, http.MethodPost, "/reservar", bia.Token, overlapping)
	assert.Equal(t, http.StatusConflict, rec.Code)

	backToBack := map[string]string{
		"sala": "A1", "dataInicio": "2099-03-10", "horarioInicio": "10:00", "horarioFim": "11:00",
	}
	rec = f.do(t, http.MethodPost, "/reservar", bia.Token, backToBack)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// whole day blocks any timed booking on it
	rec = f.do(t, http.MethodPost, "/reservar", bia.Token, map[string]string{"sala": "A1", "data": "2099-03-10"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/reservar", bia.Token, map[string]string{"sala": "B2", "data": "2099-03-10T00:00:00.000Z"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestReserveDayRange(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	bia := f.signUp(t, "bia", "bia@test.com")

	rec := f.do(t, http.MethodPost, "/reservar", ana.Token,
		map[string]string{"sala": "A1", "dataInicio": "2099-03-10", "dataFim": "2099-03-12"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[struct {
		Reserva map[string]any `json:"reserva"`
	}](t, rec)
	assert.Equal(t, "2099-03-10", created.Reserva["dataInicio"])
	assert.Equal(t, "2099-03-12", created.Reserva["dataFim"])

	rec = f.do(t, http.MethodPost, "/reservar", bia.Token, map[string]string{"sala": "A1", "data": "2099-03-11"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/reservar", bia.Token, map[string]string{"sala": "A1", "data": "2099-03-13"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestReserveValidation(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing room", map[string]string{"data": "2099-03-10"}},
		{"missing date", map[string]string{"sala": "A1"}},
		{"bad date", map[string]string{"sala": "A1", "data": "10/03/2099"}},
		{"bad clock", map[string]string{"sala": "A1", "dataInicio": "2099-03-10", "horarioInicio": "9h", "horarioFim": "10:00"}},
		{"end before start", map[string]string{"sala": "A1", "dataInicio": "2099-03-10", "horarioInicio": "10:00", "horarioFim": "09:00"}},
		{"already elapsed", map[string]string{"sala": "A1", "data": "2000-01-01"}},
		{"reversed day range", map[string]string{"sala": "A1", "dataInicio": "2099-03-12", "dataFim": "2099-03-10"}},
		{"date contradicts start date", map[string]string{"sala": "A1", "data": "2099-03-11", "dataInicio": "2099-03-10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/reservar", ana.Token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestListReservationsEmbedsOwner(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/reservar", ana.Token, morning).Code)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/reservar", ana.Token,
		map[string]string{"sala": "A1", "data": "2099-03-11"}).Code)

	rec := f.do(t, http.MethodGet, "/reservas", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]map[string]any](t, rec)
	require.Len(t, all, 2)
	owner, ok := all[0]["usuarioId"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ana", owner["apelido"])
	assert.Equal(t, "ana@test.com", owner["email"])

	rec = f.do(t, http.MethodGet, "/reservas/2099-03-11", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byDay := decodeBody[[]map[string]any](t, rec)
	require.Len(t, byDay, 1)
	assert.Equal(t, "2099-03-11", byDay[0]["data"])
	owner = byDay[0]["usuarioId"].(map[string]any)
	assert.Equal(t, "ana", owner["apelido"])
	assert.NotContains(t, owner, "email")

	rec = f.do(t, http.MethodGet, "/reservas/not-a-date", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteReservationOwnership(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	bia := f.signUp(t, "bia", "bia@test.com")

	rec := f.do(t, http.MethodPost, "/reservar", ana.Token, morning)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[struct {
		Reserva struct {
			ID string `json:"_id"`
		} `json:"reserva"`
	}](t, rec).Reserva.ID

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/reservas/"+id, bia.Token, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/reserva/"+id, "", nil).Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/reservas/"+id, ana.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/reserva/"+id, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/reservas/"+id, ana.Token, nil).Code)
}

func TestAvailability(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/reservar", ana.Token, morning).Code)

	rec := f.do(t, http.MethodGet, "/salas/A1/disponibilidade?dataInicio=2099-03-10&horarioInicio=09:30&horarioFim=09:45", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[map[string]any](t, rec)["disponivel"].(bool))

	rec = f.do(t, http.MethodGet, "/salas/A1/disponibilidade?dataInicio=2099-03-10&horarioInicio=10:00&horarioFim=11:00", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[map[string]any](t, rec)["disponivel"].(bool))
}

func TestUserCRUD(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	bia := f.signUp(t, "bia", "bia@test.com")

	rec := f.do(t, http.MethodGet, "/usuarios", ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeBody[[]map[string]any](t, rec)
	require.Len(t, users, 2)
	assert.NotContains(t, users[0], "senha")

	rec = f.do(t, http.MethodGet, "/usuarios/"+bia.ID, ana.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bia", decodeBody[map[string]any](t, rec)["apelido"])

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, "/usuarios/"+bia.ID, ana.Token, map[string]string{"apelido": "x"}).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/usuarios/"+bia.ID, ana.Token, nil).Code)

	rec = f.do(t, http.MethodPut, "/usuarios/"+ana.ID, ana.Token, map[string]string{"apelido": "aninha", "senha": "newpass1234"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aninha", decodeBody[map[string]any](t, rec)["apelido"])
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@test.com", "senha": "newpass1234"}).Code)

	rec = f.do(t, http.MethodPut, "/usuarios/"+ana.ID, ana.Token, map[string]string{"senha": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUserKeepsReservations(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/reservar", ana.Token, morning).Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/usuarios/"+ana.ID, ana.Token, nil).Code)
	assert.Zero(t, f.tokens.live(ana.ID))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/usuarios/"+ana.ID, ana.Token, nil).Code)

	rec := f.do(t, http.MethodGet, "/reservas", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]map[string]any](t, rec)
	require.Len(t, all, 1)
	assert.NotContains(t, all[0], "usuarioId")
}

func TestRefreshRotation(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")

	rec := f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": ana.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pair := decodeBody[map[string]string](t, rec)
	assert.NotEmpty(t, pair["token"])
	assert.NotEqual(t, ana.RefreshToken, pair["refreshToken"])

	// replaying the rotated token burns the whole family
	rec = f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": ana.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": pair["refreshToken"]})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": "unknown"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	f := setup(t, nil)
	ana := f.signUp(t, "ana", "ana@test.com")
	require.Equal(t, 1, f.tokens.live(ana.ID))

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/logout", ana.Token, nil).Code)
	assert.Zero(t, f.tokens.live(ana.ID))
}

func TestSelfAssertedIdentity(t *testing.T) {
	f := setup(t, middleware.FirstOf{
		middleware.BearerIdentity{Secret: secret},
		middleware.HeaderIdentity{Header: "X-User-ID"},
	})

	req := httptest.NewRequest(http.MethodPost, "/reservar", bytes.NewBufferString(`{"sala":"A1","data":"2099-03-10"}`))
	req.Header.Set("X-User-ID", "legacy-user")
	rec := httptest.NewRecorder()
	f.h.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rs, err := f.rs.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "legacy-user", rs[0].OwnerID)
	assert.True(t, rs[0].AllDay)
}

func TestCORSPreflight(t *testing.T) {
	f := setup(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/reservar", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.h.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
