package rpc

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"room-reservation-api/internal/auth"
	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/middleware"
	"room-reservation-api/internal/model"
)

const ServiceName = "reservation.v1.ReservationService"

const (
	MethodLogin             = "/" + ServiceName + "/Login"
	MethodReserve           = "/" + ServiceName + "/Reserve"
	MethodCancelReservation = "/" + ServiceName + "/CancelReservation"
	MethodListReservations  = "/" + ServiceName + "/ListReservations"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type Interval struct {
	Date      string `json:"date,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

type ReserveRequest struct {
	RoomID   string   `json:"roomId"`
	Interval Interval `json:"interval"`
	Purpose  string   `json:"purpose,omitempty"`
}

type Reservation struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	AllDay    bool      `json:"allDay"`
	Purpose   string    `json:"purpose,omitempty"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReserveResponse struct {
	Reservation Reservation `json:"reservation"`
}

type CancelReservationRequest struct {
	ID string `json:"id"`
}

type CancelReservationResponse struct{}

// ListReservationsRequest filters by calendar day when Date is set.
type ListReservationsRequest struct {
	Date string `json:"date,omitempty"`
}

type ListReservationsResponse struct {
	Reservations []Reservation `json:"reservations"`
}

type ReservationServiceServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Reserve(context.Context, *ReserveRequest) (*ReserveResponse, error)
	CancelReservation(context.Context, *CancelReservationRequest) (*CancelReservationResponse, error)
	ListReservations(context.Context, *ListReservationsRequest) (*ListReservationsResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReservationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unary(MethodLogin, ReservationServiceServer.Login)},
		{MethodName: "Reserve", Handler: unary(MethodReserve, ReservationServiceServer.Reserve)},
		{MethodName: "CancelReservation", Handler: unary(MethodCancelReservation, ReservationServiceServer.CancelReservation)},
		{MethodName: "ListReservations", Handler: unary(MethodListReservations, ReservationServiceServer.ListReservations)},
	},
	Metadata: "reservation/v1/reservation.json",
}

func RegisterReservationServiceServer(s grpc.ServiceRegistrar, srv ReservationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unary[Req, Resp any](fullMethod string, call func(ReservationServiceServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(ReservationServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Server implements ReservationServiceServer on top of the admission
// controller.
type Server struct {
	reservations *booking.Controller
	users        UserLookup
	secret       string
	accessTTL    time.Duration
	logger       *log.Logger
}

func NewServer(ctl *booking.Controller, users UserLookup, secret string, accessTTL time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{reservations: ctl, users: users, secret: secret, accessTTL: accessTTL, logger: logger}
}

// NewGRPCServer builds a grpc.Server with rate limiting on Login and
// token auth on everything else.
func NewGRPCServer(srv ReservationServiceServer, secret string, rl *middleware.RateLimiter, opts ...grpc.ServerOption) *grpc.Server {
	var chain []grpc.UnaryServerInterceptor
	if rl != nil {
		chain = append(chain, middleware.RateLimit(rl, MethodLogin))
	}
	chain = append(chain, middleware.Auth(secret, MethodLogin))
	s := grpc.NewServer(append(opts, grpc.ChainUnaryInterceptor(chain...))...)
	RegisterReservationServiceServer(s, srv)
	return s
}

func (s *Server) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password required")
	}

	u, err := s.users.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	tok, err := auth.MakeToken(u.ID, s.secret, s.accessTTL)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &LoginResponse{Token: tok, UserID: u.ID, Name: u.Name}, nil
}

func (s *Server) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	uid, _ := middleware.UserID(ctx)
	res, err := s.reservations.Reserve(ctx, booking.ReserveRequest{
		RoomID:  req.RoomID,
		OwnerID: uid,
		Interval: booking.RawInterval{
			Date:      req.Interval.Date,
			StartDate: req.Interval.StartDate,
			StartTime: req.Interval.StartTime,
			EndDate:   req.Interval.EndDate,
			EndTime:   req.Interval.EndTime,
		},
		Purpose: req.Purpose,
	})
	if err != nil {
		return nil, s.toStatus(MethodReserve, err)
	}
	return &ReserveResponse{Reservation: toReservation(res)}, nil
}

func (s *Server) CancelReservation(ctx context.Context, req *CancelReservationRequest) (*CancelReservationResponse, error) {
	uid, _ := middleware.UserID(ctx)
	if err := s.reservations.DeleteReservation(ctx, req.ID, uid); err != nil {
		return nil, s.toStatus(MethodCancelReservation, err)
	}
	return &CancelReservationResponse{}, nil
}

func (s *Server) ListReservations(ctx context.Context, req *ListReservationsRequest) (*ListReservationsResponse, error) {
	var (
		rs  []model.Reservation
		err error
	)
	if req.Date != "" {
		rs, err = s.reservations.ListByDate(ctx, req.Date)
	} else {
		rs, err = s.reservations.List(ctx)
	}
	if err != nil {
		return nil, s.toStatus(MethodListReservations, err)
	}
	out := make([]Reservation, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReservation(r))
	}
	return &ListReservationsResponse{Reservations: out}, nil
}

func (s *Server) toStatus(method string, err error) error {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, booking.ErrConflict):
		return status.Error(codes.AlreadyExists, "room already reserved for that time")
	case errors.Is(err, booking.ErrForbidden):
		return status.Error(codes.PermissionDenied, "not your reservation")
	case errors.Is(err, booking.ErrNotFound):
		return status.Error(codes.NotFound, "reservation not found")
	}
	s.logger.Printf("%s: %s: %v", method, booking.Kind(err), err)
	return status.Error(codes.Internal, "internal error")
}

func toReservation(r model.Reservation) Reservation {
	return Reservation{
		ID:        r.ID,
		RoomID:    r.Interval.RoomID,
		Start:     r.Interval.Start,
		End:       r.Interval.End,
		AllDay:    r.AllDay,
		Purpose:   r.Purpose,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
	}
}
