package keeper

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/paystream-hq/paystreamer/pkg/engine"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/paystream-hq/paystreamer/pkg/metrics"
)

// worker executes queued intents. It runs until pendingJobs is closed: after
// cancellation the remaining backlog is accounted for without being
// executed, so Start's shutdown wait cannot hang on buffered jobs.
func (s *Service) worker(ctx context.Context, id int) {
	defer s.workerWg.Done()
	s.logger.InfoWith(logger.Keeper, "Starting worker %d", id)
	for j := range s.pendingJobs {
		if ctx.Err() != nil {
			s.wg.Done()
			continue
		}
		s.process(ctx, id, j)
		s.wg.Done()
	}
	s.logger.InfoWith(logger.Keeper, "Worker %d shutting down", id)
}

func (s *Service) process(ctx context.Context, workerID int, j job) {
	cb := s.breaker(j.wallet)
	if cb.IsEnabled() && cb.IsOpen() {
		failureCount, lastFailure, _, _ := cb.GetState()
		s.logger.NoticeWith(logger.Keeper, "Worker %d: circuit breaker open for wallet %s (last failure: %v, count: %d), skipping intent %s",
			workerID, j.wallet.Hex(), lastFailure, failureCount, j.intentID.Hex())
		metrics.KeeperExecutions.WithLabelValues("breaker_open").Inc()
		return
	}

	s.logger.DebugWith(logger.Keeper, "Worker %d executing intent %s on wallet %s",
		workerID, j.intentID.Hex(), j.wallet.Hex())

	_, err := s.engine.Execute(ctx, j.wallet, j.intentID)
	if err == nil {
		s.logger.InfoWith(logger.Keeper, "Worker %d executed intent %s", workerID, j.intentID.Hex())
		metrics.KeeperExecutions.WithLabelValues("success").Inc()
		return
	}

	// Losing the race to another trigger is routine, not a failure. The
	// intent was handled; nothing to do.
	if errors.Is(err, engine.ErrNotExecutable) || errors.Is(err, engine.ErrNotActive) || errors.Is(err, engine.ErrNotFound) {
		s.logger.DebugWith(logger.Keeper, "Worker %d: intent %s no longer executable: %v", workerID, j.intentID.Hex(), err)
		metrics.KeeperExecutions.WithLabelValues("stale").Inc()
		return
	}

	s.logger.ErrorWith(logger.Keeper, "Worker %d error executing intent %s: %v", workerID, j.intentID.Hex(), err)
	metrics.KeeperExecutions.WithLabelValues("failed").Inc()

	shouldRetry, errorType := classifyError(err)
	s.logger.InfoWith(logger.Keeper, "Error on intent %s classified as %s (retry: %v)", j.intentID.Hex(), errorType, shouldRetry)

	tripped := cb.RecordFailure()
	if tripped {
		s.logger.NoticeWith(logger.Keeper, "Circuit breaker tripped for wallet %s", j.wallet.Hex())
	}

	if !shouldRetry {
		s.logger.InfoWith(logger.Keeper, "Not retrying intent %s: permanent error type %s", j.intentID.Hex(), errorType)
		return
	}
	if tripped {
		s.logger.InfoWith(logger.Keeper, "Skipping retry for intent %s: circuit breaker tripped", j.intentID.Hex())
		return
	}
	if j.retryCount >= s.config.MaxRetries {
		s.logger.NoticeWith(logger.Keeper, "Max retries reached for intent %s, giving up (error: %s)", j.intentID.Hex(), errorType)
		metrics.MaxRetriesReached.WithLabelValues(errorType).Inc()
		return
	}

	backoff := calculateBackoff(j.retryCount)
	s.logger.InfoWith(logger.Keeper, "Scheduling retry for intent %s in %v (attempt #%d, error: %s)",
		j.intentID.Hex(), backoff, j.retryCount+1, errorType)
	s.wg.Add(1)
	select {
	case s.retryJobs <- retryJob{
		job:         job{wallet: j.wallet, intentID: j.intentID, retryCount: j.retryCount + 1},
		nextAttempt: time.Now().Add(backoff),
		errorType:   errorType,
	}:
	default:
		s.wg.Done()
		s.logger.NoticeWith(logger.Keeper, "Retry queue full, dropping retry for intent %s", j.intentID.Hex())
		metrics.DroppedRetries.Inc()
	}
}

// classifyError determines whether a failed execution is worth retrying.
// Returns (shouldRetry, errorType).
func classifyError(err error) (bool, string) {
	// A revert-policy abort is the wallet doing its job: the batch will
	// abort again until the failing recipient is fixed, so retrying on a
	// backoff is pointless. The next scheduled scan picks the intent up.
	if errors.Is(err, engine.ErrTransferAborted) {
		return false, "transfer_aborted"
	}

	errStr := err.Error()

	// Network/RPC errors against the wallet backend.
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "EOF") {
		return true, "network_error"
	}

	// Gas-related errors may clear as prices move.
	if strings.Contains(errStr, "gas required exceeds allowance") ||
		strings.Contains(errStr, "insufficient funds for gas") ||
		strings.Contains(errStr, "gas price too low") {
		return true, "gas_error"
	}

	// Nonce-related errors clear once the operator nonce catches up.
	if strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "nonce too high") ||
		strings.Contains(errStr, "replacement transaction underpriced") {
		return true, "nonce_error"
	}

	// Balance shortfalls do not fix themselves on a retry backoff; the due
	// predicate re-admits the intent once the wallet is funded.
	if strings.Contains(errStr, "insufficient balance") ||
		strings.Contains(errStr, "insufficient funds") {
		return false, "insufficient_funds"
	}

	if strings.Contains(errStr, "execution reverted") {
		return false, "contract_error"
	}

	return true, "unknown_error"
}
