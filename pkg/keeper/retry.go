package keeper

import (
	"math"
	"sort"
	"time"

	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/paystream-hq/paystreamer/pkg/metrics"
)

// retryJob is an execution attempt waiting out its backoff.
type retryJob struct {
	job
	nextAttempt time.Time
	errorType   string
}

// calculateBackoff returns the exponential backoff for a retry attempt:
// 2^retry * 10 seconds, capped at 2 minutes.
func calculateBackoff(retryCount int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(retryCount))) * 10 * time.Second
	if backoff > 2*time.Minute {
		backoff = 2 * time.Minute
	}
	return backoff
}

// retryHandler holds queued retries until their backoff expires, then feeds
// them back to the worker pool. On stop it marks every held retry done so
// the shutdown accounting balances.
func (s *Service) retryHandler(stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var queue []retryJob
	const maxQueueSize = 1000
	const maxProcessPerTick = 10

	for {
		select {
		case <-stop:
			s.logger.InfoWith(logger.Keeper, "Retry handler shutting down")
			for {
				select {
				case <-s.retryJobs:
					s.wg.Done()
				default:
					for range queue {
						s.wg.Done()
					}
					return
				}
			}
		case rj := <-s.retryJobs:
			if len(queue) >= maxQueueSize {
				s.logger.NoticeWith(logger.Keeper, "Retry queue at capacity (%d), dropping retry for intent %s",
					maxQueueSize, rj.intentID.Hex())
				s.wg.Done()
				metrics.DroppedRetries.Inc()
				continue
			}
			queue = append(queue, rj)
			sort.Slice(queue, func(i, j int) bool {
				return queue[i].nextAttempt.Before(queue[j].nextAttempt)
			})
		case <-ticker.C:
			now := time.Now()
			metrics.RetryQueueSize.Set(float64(len(queue)))

			var remaining []retryJob
			processed := 0
			for _, rj := range queue {
				if !rj.nextAttempt.Before(now) || processed >= maxProcessPerTick {
					remaining = append(remaining, rj)
					continue
				}

				// The schedule may have moved on while the job waited;
				// re-check before burning a worker on it.
				if intent, ok := s.engine.Store().GetCopy(rj.wallet, rj.intentID); !ok || !intent.Active {
					s.logger.DebugWith(logger.Keeper, "Intent %s no longer active, removing from retry queue", rj.intentID.Hex())
					s.wg.Done()
					metrics.RetriesSkipped.WithLabelValues("not_active").Inc()
					processed++
					continue
				}

				s.logger.InfoWith(logger.Keeper, "Retrying intent %s (attempt #%d, error type: %s)",
					rj.intentID.Hex(), rj.retryCount, rj.errorType)
				metrics.RetriesExecuted.WithLabelValues(rj.errorType).Inc()
				select {
				case s.pendingJobs <- rj.job:
				default:
					s.wg.Done()
					s.logger.NoticeWith(logger.Keeper, "Job queue full, dropping retry for intent %s", rj.intentID.Hex())
					metrics.DroppedRetries.Inc()
				}
				processed++
			}
			queue = remaining

			// Tighten the tick when work is backed up; relax it when the
			// queue is empty.
			if processed >= maxProcessPerTick && len(queue) > 0 {
				ticker.Reset(1 * time.Second)
			} else if len(queue) > 0 {
				wait := queue[0].nextAttempt.Sub(now)
				if wait < time.Second {
					wait = time.Second
				} else if wait > 10*time.Second {
					wait = 10 * time.Second
				}
				ticker.Reset(wait)
			} else {
				ticker.Reset(10 * time.Second)
			}
		}
	}
}
