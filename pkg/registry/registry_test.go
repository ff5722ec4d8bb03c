package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIfNew(t *testing.T) {
	r := New()
	w1 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	w2 := common.HexToAddress("0x2222222222222222222222222222222222222222")

	assert.True(t, r.RegisterIfNew(w1))
	assert.False(t, r.RegisterIfNew(w1), "second registration should be a no-op")
	assert.True(t, r.RegisterIfNew(w2))

	assert.Equal(t, 2, r.Count())
	assert.True(t, r.IsRegistered(w1))
	assert.False(t, r.IsRegistered(common.HexToAddress("0x3333333333333333333333333333333333333333")))
}

func TestAllWalletsPreservesRegistrationOrder(t *testing.T) {
	r := New()
	wallets := []common.Address{
		common.HexToAddress("0x9999999999999999999999999999999999999999"),
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x5555555555555555555555555555555555555555"),
	}
	for _, w := range wallets {
		r.RegisterIfNew(w)
	}

	// Re-registrations must not disturb the order
	r.RegisterIfNew(wallets[1])

	assert.Equal(t, wallets, r.AllWallets())
}

func TestAllWalletsReturnsCopy(t *testing.T) {
	r := New()
	w1 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	r.RegisterIfNew(w1)

	list := r.AllWallets()
	list[0] = common.HexToAddress("0xdead000000000000000000000000000000000000")

	assert.Equal(t, []common.Address{w1}, r.AllWallets())
}
