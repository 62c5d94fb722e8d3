package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"room-reservation-api/internal/booking"
	"room-reservation-api/internal/config"
	"room-reservation-api/internal/jobs"
)

// sweeper deletes elapsed reservations on a schedule, independently of
// the API server. With -once it runs a single sweep and exits.
func main() {
	once := flag.Bool("once", false, "run one sweep and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadSweeper()
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}

	sweeper := booking.NewSweeper(jobs.NewRepository(db), nil, nil).WithTimeout(cfg.StoreTimeout)
	if *once {
		n, err := sweeper.Sweep(context.Background())
		if err != nil {
			log.Fatalf("sweep: %v", err)
		}
		log.Printf("removed %d expired reservations", n)
		return
	}

	c := cron.New()
	if _, err := sweeper.Schedule(c, cfg.SweepSchedule); err != nil {
		log.Fatalf("schedule %q: %v", cfg.SweepSchedule, err)
	}
	c.Start()
	log.Printf("sweeping expired reservations %s", cfg.SweepSchedule)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Println("shutting down")
	<-c.Stop().Done()
}
