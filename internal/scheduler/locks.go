package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const jobLockKey = "tugas:scheduler:%s"

type jobLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// withJobLock runs fn only on the replica that wins the lock. Without a
// locker every replica runs the job; CAS updates keep that safe.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	key := fmt.Sprintf(jobLockKey, job)
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.logger(ctx).Warn("scheduler.lock.failed", zap.String("job", job), zap.Error(err))
		return err
	}
	if !ok {
		s.metrics.IncJobSkipped(job)
		s.logger(ctx).Debug("scheduler.lock.held", zap.String("job", job))
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}
