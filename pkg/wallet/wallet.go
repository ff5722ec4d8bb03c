package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// Capability is the slice of a smart-contract wallet the scheduler core
// needs: balance reads, commitment bookkeeping mirrored on the wallet side,
// and the batch transfer primitive.
//
// ExecuteBatchTransfer must honor the two-variant outcome contract: under
// the revert policy a single failed transfer aborts the whole batch with
// nothing moved (Aborted), under the skip policy the batch completes with
// the failed portion reported in FailedAmount and per-recipient Results.
type Capability interface {
	// Balance returns the wallet's total balance in the asset, committed
	// funds included.
	Balance(ctx context.Context, asset common.Address) (*big.Int, error)

	// IncreaseCommitment reserves funds against future scheduled payments.
	IncreaseCommitment(ctx context.Context, asset common.Address, amount *big.Int) error

	// DecreaseCommitment releases previously reserved funds.
	DecreaseCommitment(ctx context.Context, asset common.Address, amount *big.Int) error

	// ExecuteBatchTransfer attempts each transfer in the request.
	ExecuteBatchTransfer(ctx context.Context, req models.BatchTransferRequest) (models.BatchTransferOutcome, error)
}

// Provider resolves a wallet address to its capability.
type Provider interface {
	Wallet(addr common.Address) (Capability, error)
}
