package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// NotificationRetryJob moves failed notifications with attempts left back to
// retrying so the worker picks them up again.
func (s *Scheduler) NotificationRetryJob(ctx context.Context) error {
	res, err := s.notifications.RetryFailedNotifications(ctx, s.cfg.MaxAttempts)
	if err != nil {
		s.jobFailed(ctx, "scheduler.notification.retry.failed", err)
		return err
	}
	runFrom(ctx).addProcessed(int(res.Retried))
	s.metrics.AddItems(JobNotificationRetry, "notification", "retried", int(res.Retried))
	s.metrics.AddItems(JobNotificationRetry, "notification", "terminal", int(res.TerminalFailures))
	if res.TerminalFailures > 0 {
		s.logger(ctx).Warn("notifications exhausted retries",
			zap.Int64("terminal_failures", res.TerminalFailures),
			zap.Int("max_attempts", s.cfg.MaxAttempts),
		)
	}
	return nil
}

// NotificationRecoveryJob fails notifications stuck in processing past the
// recovery threshold, typically after a worker crash mid-delivery.
func (s *Scheduler) NotificationRecoveryJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.RecoveryThreshold)
	recovered, err := s.notifications.RecoverStale(ctx, cutoff)
	if err != nil {
		s.jobFailed(ctx, "scheduler.notification.recovery.failed", err)
		return err
	}
	runFrom(ctx).addProcessed(int(recovered))
	s.metrics.AddItems(JobNotificationRecovery, "notification", "recovered", int(recovered))
	return nil
}
