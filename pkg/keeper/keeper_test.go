package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/engine"
	"github.com/paystream-hq/paystreamer/pkg/events"
	"github.com/paystream-hq/paystreamer/pkg/ledger"
	"github.com/paystream-hq/paystreamer/pkg/models"
	"github.com/paystream-hq/paystreamer/pkg/registry"
	"github.com/paystream-hq/paystreamer/pkg/store"
	"github.com/paystream-hq/paystreamer/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	kpWallet    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	kpRecipient = common.HexToAddress("0xaaaa000000000000000000000000000000000000")
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		expected   time.Duration
	}{
		{
			name:       "First retry",
			retryCount: 0,
			expected:   10 * time.Second,
		},
		{
			name:       "Second retry",
			retryCount: 1,
			expected:   20 * time.Second,
		},
		{
			name:       "Third retry",
			retryCount: 2,
			expected:   40 * time.Second,
		},
		{
			name:       "Backoff is capped at two minutes",
			retryCount: 10,
			expected:   2 * time.Minute,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, calculateBackoff(tc.retryCount))
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		shouldRetry bool
		errorType   string
	}{
		{
			name:        "Transfer aborted is permanent",
			err:         fmt.Errorf("%w: 0xabc", engine.ErrTransferAborted),
			shouldRetry: false,
			errorType:   "transfer_aborted",
		},
		{
			name:        "Connection refused is transient",
			err:         errors.New("dial tcp: connection refused"),
			shouldRetry: true,
			errorType:   "network_error",
		},
		{
			name:        "Timeout is transient",
			err:         errors.New("context deadline exceeded"),
			shouldRetry: true,
			errorType:   "network_error",
		},
		{
			name:        "Gas error is transient",
			err:         errors.New("gas price too low"),
			shouldRetry: true,
			errorType:   "gas_error",
		},
		{
			name:        "Nonce error is transient",
			err:         errors.New("nonce too low"),
			shouldRetry: true,
			errorType:   "nonce_error",
		},
		{
			name:        "Insufficient funds is permanent",
			err:         errors.New("insufficient balance for transfer"),
			shouldRetry: false,
			errorType:   "insufficient_funds",
		},
		{
			name:        "Contract revert is permanent",
			err:         errors.New("execution reverted: bad state"),
			shouldRetry: false,
			errorType:   "contract_error",
		},
		{
			name:        "Unknown errors are retried",
			err:         errors.New("something odd"),
			shouldRetry: true,
			errorType:   "unknown_error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			shouldRetry, errorType := classifyError(tc.err)
			assert.Equal(t, tc.shouldRetry, shouldRetry)
			assert.Equal(t, tc.errorType, errorType)
		})
	}
}

func newKeeperTestEnv(t *testing.T) (*Service, *engine.Engine, *wallet.SimProvider) {
	t.Helper()
	sim := wallet.NewSimProvider()
	eng := engine.New(store.New(), ledger.New(), registry.New(), sim, events.NewBus(),
		engine.SystemClock(), engine.DefaultParams(), nil)
	svc := NewService(eng, Config{
		PollingInterval:            time.Second,
		WorkerCount:                1,
		MaxRetries:                 3,
		CircuitBreakerEnabled:      true,
		CircuitBreakerThreshold:    2,
		CircuitBreakerWindow:       time.Minute,
		CircuitBreakerResetTimeout: time.Minute,
	}, nil)
	return svc, eng, sim
}

func createDueIntent(t *testing.T, eng *engine.Engine, sim *wallet.SimProvider, policy models.FailurePolicy) common.Hash {
	t.Helper()
	sim.Fund(kpWallet, models.NativeAsset, big.NewInt(1000))
	id, err := eng.CreateIntent(context.Background(), engine.CreateIntentParams{
		Wallet:     kpWallet,
		Asset:      models.NativeAsset,
		Recipients: []common.Address{kpRecipient},
		Amounts:    []*big.Int{big.NewInt(10)},
		Duration:   3 * time.Minute,
		Interval:   time.Minute,
		Policy:     policy,
	})
	require.NoError(t, err)
	return id
}

func TestProcessExecutesDueIntent(t *testing.T) {
	svc, eng, sim := newKeeperTestEnv(t)
	id := createDueIntent(t, eng, sim, models.FailurePolicySkip)

	svc.process(context.Background(), 0, job{wallet: kpWallet, intentID: id})

	intent, ok := eng.Store().GetCopy(kpWallet, id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), intent.ExecutionsPerformed)
}

func TestProcessTreatsStaleJobAsBenign(t *testing.T) {
	svc, eng, sim := newKeeperTestEnv(t)
	id := createDueIntent(t, eng, sim, models.FailurePolicySkip)

	// Someone else executes first
	_, err := eng.Execute(context.Background(), kpWallet, id)
	require.NoError(t, err)

	// The stale job neither errors nor schedules a retry
	svc.process(context.Background(), 0, job{wallet: kpWallet, intentID: id})
	assert.Len(t, svc.retryJobs, 0)

	intent, _ := eng.Store().GetCopy(kpWallet, id)
	assert.Equal(t, uint64(1), intent.ExecutionsPerformed)
}

func TestProcessDoesNotRetryAbortedTransfer(t *testing.T) {
	svc, eng, sim := newKeeperTestEnv(t)
	id := createDueIntent(t, eng, sim, models.FailurePolicyRevert)
	sim.FailTransfersTo(kpRecipient, "down")

	svc.process(context.Background(), 0, job{wallet: kpWallet, intentID: id})
	assert.Len(t, svc.retryJobs, 0, "revert-policy aborts are not retried on backoff")

	intent, _ := eng.Store().GetCopy(kpWallet, id)
	assert.Equal(t, uint64(0), intent.ExecutionsPerformed, "abort rolled the round back")
}

func TestProcessSkipsWhenBreakerOpen(t *testing.T) {
	svc, eng, sim := newKeeperTestEnv(t)
	id := createDueIntent(t, eng, sim, models.FailurePolicySkip)

	cb := svc.breaker(kpWallet)
	cb.RecordFailure()
	cb.RecordFailure() // threshold 2: breaker trips
	require.True(t, cb.IsOpen())

	svc.process(context.Background(), 0, job{wallet: kpWallet, intentID: id})

	intent, _ := eng.Store().GetCopy(kpWallet, id)
	assert.Equal(t, uint64(0), intent.ExecutionsPerformed, "open breaker must block execution")
}

func TestStartReturnsWithBackloggedJobs(t *testing.T) {
	svc, _, _ := newKeeperTestEnv(t)

	// Queue work that will never run: cancellation comes first. Shutdown
	// must account for every queued job or the final wait hangs.
	for i := 0; i < 5; i++ {
		svc.wg.Add(1)
		svc.pendingJobs <- job{wallet: kpWallet, intentID: common.HexToHash("0x01")}
	}
	svc.wg.Add(1)
	svc.retryJobs <- retryJob{
		job:         job{wallet: kpWallet, intentID: common.HexToHash("0x02"), retryCount: 1},
		nextAttempt: time.Now().Add(time.Minute),
		errorType:   "network_error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("keeper shutdown hung on undrained job queues")
	}
}

func TestBreakersSnapshot(t *testing.T) {
	svc, _, _ := newKeeperTestEnv(t)
	svc.breaker(kpWallet)

	snapshot := svc.Breakers()
	assert.Len(t, snapshot, 1)
	assert.Contains(t, snapshot, kpWallet)
}
