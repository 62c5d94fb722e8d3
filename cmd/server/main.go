package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/config"
	"room-reservation-api/internal/handler"
	"room-reservation-api/internal/middleware"
	"room-reservation-api/internal/notify"
	"room-reservation-api/internal/rpc"
	"room-reservation-api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	log.Println("connected to postgres")

	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrations applied")

	opts := []booking.Option{booking.WithTimeout(cfg.StoreTimeout)}
	if cfg.AMQPURL != "" {
		pub, err := notify.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer pub.Close()
		opts = append(opts, booking.WithEvents(pub))
		log.Printf("publishing reservation events to exchange %q", cfg.AMQPExchange)
	}
	ctl := booking.NewController(st, opts...)

	// periodic sweep on top of the one every admission runs
	sched := cron.New()
	if cfg.SweepSchedule != "" {
		sweeper := booking.NewSweeper(st, nil, nil).WithTimeout(cfg.StoreTimeout)
		if _, err := sweeper.Schedule(sched, cfg.SweepSchedule); err != nil {
			log.Fatalf("sweep schedule %q: %v", cfg.SweepSchedule, err)
		}
		// expired sessions go with the same schedule
		if _, err := sched.AddFunc(cfg.SweepSchedule, func() {
			pctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
			defer cancel()
			if n, err := st.PurgeRefreshTokens(pctx, time.Now()); err != nil {
				log.Printf("purge refresh tokens: %v", err)
			} else if n > 0 {
				log.Printf("purged %d expired refresh tokens", n)
			}
		}); err != nil {
			log.Fatalf("purge schedule %q: %v", cfg.SweepSchedule, err)
		}
		sched.Start()
		log.Printf("expired reservations swept %s", cfg.SweepSchedule)
	}

	rl := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateBurst)

	var identity middleware.IdentitySource = middleware.BearerIdentity{Secret: cfg.JWTSecret}
	if cfg.AllowSelfAssertedIdentity {
		log.Println("WARNING: trusting X-User-ID when no bearer token is sent")
		identity = middleware.FirstOf{identity, middleware.HeaderIdentity{Header: "X-User-ID"}}
	}

	// grpc server
	srv := rpc.NewGRPCServer(rpc.NewServer(ctl, st, cfg.JWTSecret, cfg.AccessTTL, nil), cfg.JWTSecret, rl)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		log.Printf("grpc on :%s", cfg.GRPCPort)
		if err := srv.Serve(lis); err != nil {
			log.Printf("grpc: %v", err)
		}
	}()

	// rest
	h := handler.New(ctl, st, st, handler.Config{
		Secret:      cfg.JWTSecret,
		AccessTTL:   cfg.AccessTTL,
		RefreshTTL:  cfg.RefreshTTL,
		Identity:    identity,
		Limiter:     rl,
		CORSOrigins: cfg.CORSOrigins,
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http on :%s", cfg.WebPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	srv.GracefulStop()
	<-sched.Stop().Done()
}
