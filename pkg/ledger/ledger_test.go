package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	walletA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	walletB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	assetX  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestLedgerIncreaseDecrease(t *testing.T) {
	l := New()

	l.Increase(walletA, assetX, big.NewInt(100))
	l.Increase(walletA, assetX, big.NewInt(50))
	assert.Equal(t, big.NewInt(150), l.Committed(walletA, assetX))

	err := l.Decrease(walletA, assetX, big.NewInt(120))
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(30), l.Committed(walletA, assetX))
}

func TestLedgerPairsAreIndependent(t *testing.T) {
	l := New()

	l.Increase(walletA, assetX, big.NewInt(100))
	l.Increase(walletB, assetX, big.NewInt(7))
	nativeAsset := common.Address{}
	l.Increase(walletA, nativeAsset, big.NewInt(9))

	assert.Equal(t, big.NewInt(100), l.Committed(walletA, assetX))
	assert.Equal(t, big.NewInt(7), l.Committed(walletB, assetX))
	assert.Equal(t, big.NewInt(9), l.Committed(walletA, nativeAsset))
}

func TestLedgerUnderflow(t *testing.T) {
	tests := []struct {
		name      string
		committed int64
		release   int64
	}{
		{
			name:      "Release from empty entry",
			committed: 0,
			release:   1,
		},
		{
			name:      "Release more than committed",
			committed: 50,
			release:   51,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New()
			if tc.committed > 0 {
				l.Increase(walletA, assetX, big.NewInt(tc.committed))
			}

			err := l.Decrease(walletA, assetX, big.NewInt(tc.release))
			assert.ErrorIs(t, err, ErrUnderflow)

			// State must be untouched after a failed decrease
			assert.Equal(t, big.NewInt(tc.committed), l.Committed(walletA, assetX))
		})
	}
}

func TestLedgerAvailable(t *testing.T) {
	tests := []struct {
		name      string
		committed int64
		balance   int64
		expected  int64
	}{
		{
			name:      "Nothing committed",
			committed: 0,
			balance:   100,
			expected:  100,
		},
		{
			name:      "Partially committed",
			committed: 40,
			balance:   100,
			expected:  60,
		},
		{
			name:      "Fully committed",
			committed: 100,
			balance:   100,
			expected:  0,
		},
		{
			name:      "Committed exceeds balance clamps to zero",
			committed: 150,
			balance:   100,
			expected:  0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := New()
			if tc.committed > 0 {
				l.Increase(walletA, assetX, big.NewInt(tc.committed))
			}
			avail := l.Available(walletA, assetX, big.NewInt(tc.balance))
			assert.Equal(t, big.NewInt(tc.expected), avail)
		})
	}
}

func TestLedgerCommittedReturnsCopy(t *testing.T) {
	l := New()
	l.Increase(walletA, assetX, big.NewInt(100))

	c := l.Committed(walletA, assetX)
	c.SetInt64(0)

	assert.Equal(t, big.NewInt(100), l.Committed(walletA, assetX))
}
