package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/model"
)

type reserveRequest struct {
	Sala          string `json:"sala"`
	Data          string `json:"data"`
	DataInicio    string `json:"dataInicio"`
	DataFim       string `json:"dataFim"`
	HorarioInicio string `json:"horarioInicio"`
	HorarioFim    string `json:"horarioFim"`
	Finalidade    string `json:"finalidade"`
}

func (req reserveRequest) interval() booking.RawInterval {
	return booking.RawInterval{
		Date:      dateOnly(req.Data),
		StartDate: dateOnly(req.DataInicio),
		StartTime: req.HorarioInicio,
		EndDate:   dateOnly(req.DataFim),
		EndTime:   req.HorarioFim,
	}
}

type ownerView struct {
	ID      string `json:"_id"`
	Apelido string `json:"apelido"`
	Email   string `json:"email,omitempty"`
}

type reservationView struct {
	ID            string     `json:"_id"`
	Sala          string     `json:"sala"`
	Data          string     `json:"data,omitempty"`
	DataInicio    string     `json:"dataInicio"`
	DataFim       string     `json:"dataFim"`
	HorarioInicio string     `json:"horarioInicio,omitempty"`
	HorarioFim    string     `json:"horarioFim,omitempty"`
	Finalidade    string     `json:"finalidade,omitempty"`
	UsuarioID     string     `json:"-"`
	Usuario       *ownerView `json:"usuarioId,omitempty"`
	CriadoEm      time.Time  `json:"criadoEm"`
}

func viewReservation(r model.Reservation) reservationView {
	v := reservationView{
		ID:         r.ID,
		Sala:       r.Interval.RoomID,
		Finalidade: r.Purpose,
		UsuarioID:  r.OwnerID,
		CriadoEm:   r.CreatedAt,
	}
	if r.AllDay {
		day := r.Interval.Start.Format(booking.DateLayout)
		v.Data = day
		v.DataInicio = day
		v.DataFim = r.Interval.End.AddDate(0, 0, -1).Format(booking.DateLayout)
		return v
	}
	v.DataInicio = r.Interval.Start.Format(booking.DateLayout)
	v.DataFim = r.Interval.End.Format(booking.DateLayout)
	v.HorarioInicio = r.Interval.Start.Format(booking.ClockLayout)
	v.HorarioFim = r.Interval.End.Format(booking.ClockLayout)
	return v
}

type reserveResponse struct {
	Message string          `json:"message"`
	Reserva reservationView `json:"reserva"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decode(r, &req); err != nil {
		message(w, http.StatusBadRequest, "Dados incompletos.")
		return
	}

	res, err := h.reservations.Reserve(r.Context(), booking.ReserveRequest{
		RoomID:   req.Sala,
		OwnerID:  caller(r),
		Interval: req.interval(),
		Purpose:  req.Finalidade,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, reserveResponse{
		Message: "Reserva criada com sucesso!",
		Reserva: viewReservation(res),
	})
}

func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	rs, err := h.reservations.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views, err := h.withOwners(r, rs, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, views)
}

func (h *Handler) listReservationsByDate(w http.ResponseWriter, r *http.Request) {
	rs, err := h.reservations.ListByDate(r.Context(), dateOnly(mux.Vars(r)["data"]))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views, err := h.withOwners(r, rs, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, views)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views, err := h.withOwners(r, []model.Reservation{res}, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, views[0])
}

func (h *Handler) deleteReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.reservations.DeleteReservation(r.Context(), mux.Vars(r)["id"], caller(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	message(w, http.StatusOK, "Reserva cancelada com sucesso.")
}

type availabilityResponse struct {
	Sala       string `json:"sala"`
	Disponivel bool   `json:"disponivel"`
}

// availability answers without reserving, so the result is only advisory.
func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room := mux.Vars(r)["sala"]
	req := reserveRequest{
		Data:          q.Get("data"),
		DataInicio:    q.Get("dataInicio"),
		DataFim:       q.Get("dataFim"),
		HorarioInicio: q.Get("horarioInicio"),
		HorarioFim:    q.Get("horarioFim"),
	}
	ok, err := h.reservations.Available(r.Context(), room, req.interval())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, availabilityResponse{Sala: room, Disponivel: ok})
}

// withOwners embeds each owner's nickname, and email when withEmail is
// set. Owners that no longer exist are left out.
func (h *Handler) withOwners(r *http.Request, rs []model.Reservation, withEmail bool) ([]reservationView, error) {
	users, err := h.users.Users(r.Context())
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	views := make([]reservationView, 0, len(rs))
	for _, res := range rs {
		v := viewReservation(res)
		if u, ok := byID[res.OwnerID]; ok {
			o := &ownerView{ID: u.ID, Apelido: u.Name}
			if withEmail {
				o.Email = u.Email
			}
			v.Usuario = o
		}
		views = append(views, v)
	}
	return views, nil
}

// dateOnly accepts both plain dates and ISO timestamps such as the ones a
// browser Date serializes to, keeping the calendar date part.
func dateOnly(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(booking.DateLayout) && s[len(booking.DateLayout)] == 'T' {
		return s[:len(booking.DateLayout)]
	}
	return s
}
