package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func sampleIntent() *Intent {
	return &Intent{
		ID:              common.HexToHash("0x01"),
		Wallet:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Asset:           NativeAsset,
		Recipients:      []common.Address{common.HexToAddress("0xaaaa000000000000000000000000000000000000")},
		Amounts:         []*big.Int{big.NewInt(10), big.NewInt(5)},
		Interval:        time.Minute,
		TotalExecutions: 4,
		Active:          true,
		Policy:          FailurePolicySkip,
		FailedAmount:    big.NewInt(3),
	}
}

func TestFailurePolicyValid(t *testing.T) {
	assert.True(t, FailurePolicyRevert.Valid())
	assert.True(t, FailurePolicySkip.Valid())
	assert.False(t, FailurePolicy("").Valid())
	assert.False(t, FailurePolicy("abort").Valid())
}

func TestIntentAmountHelpers(t *testing.T) {
	i := sampleIntent()

	assert.Equal(t, big.NewInt(15), i.TotalAmount())
	assert.Equal(t, uint64(4), i.RemainingExecutions())
	assert.Equal(t, big.NewInt(60), i.RemainingCommitment())

	i.ExecutionsPerformed = 3
	assert.Equal(t, uint64(1), i.RemainingExecutions())
	assert.Equal(t, big.NewInt(15), i.RemainingCommitment())

	i.ExecutionsPerformed = 4
	assert.Equal(t, uint64(0), i.RemainingExecutions())
	assert.Equal(t, big.NewInt(0), i.RemainingCommitment())
}

func TestIntentStatus(t *testing.T) {
	i := sampleIntent()
	assert.Equal(t, "active", i.Status())

	i.Active = false
	assert.Equal(t, "completed", i.Status())

	i.Cancelled = true
	assert.Equal(t, "cancelled", i.Status())
}

func TestIntentClone(t *testing.T) {
	i := sampleIntent()
	cp := i.Clone()

	cp.Amounts[0].SetInt64(999)
	cp.Recipients[0] = common.Address{}
	cp.FailedAmount.SetInt64(0)

	assert.Equal(t, big.NewInt(10), i.Amounts[0])
	assert.NotEqual(t, common.Address{}, i.Recipients[0])
	assert.Equal(t, big.NewInt(3), i.FailedAmount)
}
