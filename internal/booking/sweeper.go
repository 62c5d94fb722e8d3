package booking

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes reservations whose interval has fully elapsed.
type Sweeper struct {
	store   ExpiredDeleter
	now     func() time.Time
	timeout time.Duration
	logger  *log.Logger
}

func NewSweeper(store ExpiredDeleter, now func() time.Time, logger *log.Logger) *Sweeper {
	if now == nil {
		now = Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{store: store, now: now, timeout: DefaultTimeout, logger: logger}
}

// WithTimeout bounds each sweep; non-positive values are ignored.
func (s *Sweeper) WithTimeout(d time.Duration) *Sweeper {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Sweep removes every reservation with End <= now.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return sweep(ctx, s.store, s.now())
}

// Schedule registers a periodic sweep on c, e.g. "@every 1m".
func (s *Sweeper) Schedule(c *cron.Cron, schedule string) (cron.EntryID, error) {
	return c.AddFunc(schedule, func() {
		n, err := s.Sweep(context.Background())
		if err != nil {
			s.logger.Printf("sweep: %v", err)
			return
		}
		if n > 0 {
			s.logger.Printf("sweep: removed %d expired reservations", n)
		}
	})
}

func sweep(ctx context.Context, st ExpiredDeleter, now time.Time) (int64, error) {
	n, err := st.DeleteExpired(ctx, now)
	if err != nil {
		return 0, storeErr("delete expired", err)
	}
	return n, nil
}
