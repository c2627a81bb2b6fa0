// Package download delivers processed results one at a time with a pause between deliveries
package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"
)

// Deliverer - куда отдаем готовый файл
type Deliverer interface {
	Deliver(ctx context.Context, name string, data []byte) error
}

// WaitFunc blocks for d or until ctx is done
type WaitFunc func(ctx context.Context, d time.Duration) error

// Job - одна выгрузка
type Job struct {
	ItemID string
	Name   string
	Data   []byte
}

// Scheduler is strictly sequential: the next job starts only after the previous delivery returned and the interval passed.
type Scheduler struct {
	deliverer Deliverer
	interval  time.Duration
	wait      WaitFunc
}

func NewScheduler(d Deliverer, interval time.Duration, wait WaitFunc) *Scheduler {
	if wait == nil {
		wait = Sleep
	}
	return &Scheduler{deliverer: d, interval: interval, wait: wait}
}

// Sleep is the production WaitFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deliver sends a single job without waiting
func (s *Scheduler) Deliver(ctx context.Context, job Job) error {
	if err := s.deliverer.Deliver(ctx, job.Name, job.Data); err != nil {
		return fmt.Errorf("failed to deliver %q: %w", job.Name, err)
	}
	return nil
}

// Run drains jobs in order. A failed delivery is logged and does not stop the queue, a cancelled ctx does.
// Returns how many jobs were delivered.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) (int, error) {
	delivered := 0
	var errs []error

	for i, job := range jobs {
		if i > 0 {
			if err := s.wait(ctx, s.interval); err != nil {
				errs = append(errs, err)
				return delivered, errors.Join(errs...)
			}
		}

		if err := s.Deliver(ctx, job); err != nil {
			zlog.Logger.Error().Err(err).Str("item_id", job.ItemID).Msg("Download failed")
			errs = append(errs, err)
			continue
		}
		delivered++
	}

	return delivered, errors.Join(errs...)
}
