package keeper

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/circuitbreaker"
	"github.com/paystream-hq/paystreamer/pkg/engine"
	"github.com/paystream-hq/paystreamer/pkg/logger"
)

// Config tunes the keeper's polling and retry behaviour.
type Config struct {
	PollingInterval time.Duration
	WorkerCount     int
	MaxRetries      int

	CircuitBreakerEnabled      bool
	CircuitBreakerThreshold    int
	CircuitBreakerWindow       time.Duration
	CircuitBreakerResetTimeout time.Duration
}

// Service is the untrusted automation that keeps schedules moving: it polls
// the engine for due intents and triggers their execution. It holds no
// authority of its own; a malicious or crashed keeper can only delay
// payments, never misdirect them.
type Service struct {
	engine *engine.Engine
	config Config
	logger logger.Logger

	pendingJobs chan job
	retryJobs   chan retryJob
	// wg counts queued jobs; workerWg counts worker goroutines.
	wg       sync.WaitGroup
	workerWg sync.WaitGroup

	mu       sync.Mutex
	breakers map[common.Address]*circuitbreaker.CircuitBreaker
}

type job struct {
	wallet   common.Address
	intentID common.Hash
	// retryCount is zero for jobs coming straight from a scan.
	retryCount int
}

// NewService creates a keeper over the engine.
func NewService(eng *engine.Engine, cfg Config, log logger.Logger) *Service {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Service{
		engine:      eng,
		config:      cfg,
		logger:      log,
		pendingJobs: make(chan job, 100),
		retryJobs:   make(chan retryJob, 100),
		breakers:    make(map[common.Address]*circuitbreaker.CircuitBreaker),
	}
}

// Start runs the worker pool, the retry handler and the polling loop. It
// blocks until the context is cancelled and every queued job has been
// accounted for.
func (s *Service) Start(ctx context.Context) {
	s.logger.InfoWith(logger.Keeper, "Starting %d worker goroutines", s.config.WorkerCount)
	for i := 0; i < s.config.WorkerCount; i++ {
		s.workerWg.Add(1)
		go s.worker(ctx, i)
	}

	retryStop := make(chan struct{})
	retryDone := make(chan struct{})
	go func() {
		s.retryHandler(retryStop)
		close(retryDone)
	}()

	s.logger.InfoWith(logger.Keeper, "Starting keeper with polling interval %v", s.config.PollingInterval)
	ticker := time.NewTicker(s.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoWith(logger.Keeper, "Context cancelled, shutting down keeper")
			// Shutdown order matters for the job accounting: first stop the
			// retry handler (the only other sender into pendingJobs), then
			// close pendingJobs so workers drain the backlog and exit, and
			// finally absorb any retries workers queued on their way out.
			close(retryStop)
			<-retryDone
			close(s.pendingJobs)
			s.workerWg.Wait()
			for {
				select {
				case <-s.retryJobs:
					s.wg.Done()
				default:
					s.wg.Wait()
					return
				}
			}
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// pollOnce runs one scan and queues the first due intent, if any. One intent
// per tick keeps the scan cheap; the next tick picks up whatever became due
// in the meantime.
func (s *Service) pollOnce(ctx context.Context) {
	candidate, err := s.engine.FindDueIntent(ctx)
	if err != nil {
		s.logger.ErrorWith(logger.Keeper, "Scan failed: %v", err)
		return
	}
	if candidate == nil {
		s.logger.DebugWith(logger.Keeper, "No due intents")
		return
	}

	s.logger.DebugWith(logger.Keeper, "Found due intent %s on wallet %s",
		candidate.IntentID.Hex(), candidate.Wallet.Hex())
	s.wg.Add(1)
	select {
	case s.pendingJobs <- job{wallet: candidate.Wallet, intentID: candidate.IntentID}:
	default:
		// Queue saturated; the intent stays due and the next tick finds it.
		s.wg.Done()
		s.logger.NoticeWith(logger.Keeper, "Job queue full, deferring intent %s", candidate.IntentID.Hex())
	}
}

// breaker returns the wallet's circuit breaker, creating it on first use.
func (s *Service) breaker(wallet common.Address) *circuitbreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[wallet]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(
			s.config.CircuitBreakerEnabled,
			s.config.CircuitBreakerThreshold,
			s.config.CircuitBreakerWindow,
			s.config.CircuitBreakerResetTimeout,
			s.logger,
		)
		s.breakers[wallet] = cb
	}
	return cb
}

// Breakers returns a snapshot of the per-wallet circuit breakers for the
// health endpoint.
func (s *Service) Breakers() map[common.Address]*circuitbreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[common.Address]*circuitbreaker.CircuitBreaker, len(s.breakers))
	for w, cb := range s.breakers {
		out[w] = cb
	}
	return out
}
