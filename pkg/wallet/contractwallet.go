package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// WalletABI is the ABI slice of the smart-contract wallet the scheduler
// talks to.
const WalletABI = `[
	{
		"inputs": [{"internalType": "address", "name": "asset", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "increaseCommitment",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "decreaseCommitment",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "address[]", "name": "recipients", "type": "address[]"},
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"},
			{"internalType": "bytes32", "name": "intentId", "type": "bytes32"},
			{"internalType": "uint256", "name": "executionIndex", "type": "uint256"},
			{"internalType": "bool", "name": "revertOnFailure", "type": "bool"}
		],
		"name": "executeBatchTransfer",
		"outputs": [{"internalType": "uint256", "name": "failedAmount", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "intentId", "type": "bytes32"},
			{"indexed": false, "internalType": "uint256", "name": "executionIndex", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "failedAmount", "type": "uint256"},
			{"indexed": false, "internalType": "bool[]", "name": "outcomes", "type": "bool[]"}
		],
		"name": "BatchTransferExecuted",
		"type": "event"
	}
]`

// ContractProvider resolves wallet addresses to on-chain capabilities over a
// single RPC connection.
type ContractProvider struct {
	client  *ethclient.Client
	auth    *bind.TransactOpts
	chainID *big.Int
	abi     abi.ABI
}

// NewContractProvider dials the RPC endpoint and prepares a transactor for
// the operator key.
func NewContractProvider(ctx context.Context, rpcURL, privateKeyHex string) (*ContractProvider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC %s: %v", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}

	parsed, err := abi.JSON(strings.NewReader(WalletABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet ABI: %v", err)
	}

	return &ContractProvider{
		client:  client,
		auth:    auth,
		chainID: chainID,
		abi:     parsed,
	}, nil
}

// Wallet binds the capability to the wallet contract at addr.
func (p *ContractProvider) Wallet(addr common.Address) (Capability, error) {
	contract := bind.NewBoundContract(addr, p.abi, p.client, p.client, p.client)
	return &ContractWallet{
		addr:     addr,
		provider: p,
		contract: contract,
	}, nil
}

// ContractWallet is the on-chain implementation of the wallet capability.
type ContractWallet struct {
	addr     common.Address
	provider *ContractProvider
	contract *bind.BoundContract
}

var _ Capability = (*ContractWallet)(nil)

// Balance calls balanceOf on the wallet contract.
func (w *ContractWallet) Balance(ctx context.Context, asset common.Address) (*big.Int, error) {
	var out []interface{}
	err := w.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", asset)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %v", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result from balanceOf")
	}
	balance, ok := out[0].(*big.Int)
	if !ok || balance == nil {
		return nil, fmt.Errorf("invalid balanceOf result type")
	}
	return balance, nil
}

// IncreaseCommitment submits an increaseCommitment transaction and waits for
// it to be mined.
func (w *ContractWallet) IncreaseCommitment(ctx context.Context, asset common.Address, amount *big.Int) error {
	return w.transact(ctx, "increaseCommitment", asset, amount)
}

// DecreaseCommitment submits a decreaseCommitment transaction and waits for
// it to be mined.
func (w *ContractWallet) DecreaseCommitment(ctx context.Context, asset common.Address, amount *big.Int) error {
	return w.transact(ctx, "decreaseCommitment", asset, amount)
}

func (w *ContractWallet) transact(ctx context.Context, method string, args ...interface{}) error {
	opts := *w.provider.auth
	opts.Context = ctx

	tx, err := w.contract.Transact(&opts, method, args...)
	if err != nil {
		return fmt.Errorf("%s transaction failed: %v", method, err)
	}
	receipt, err := bind.WaitMined(ctx, w.provider.client, tx)
	if err != nil {
		return fmt.Errorf("waiting for %s transaction: %v", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s transaction reverted: %s", method, tx.Hash().Hex())
	}
	return nil
}

// ExecuteBatchTransfer submits the batch and reconstructs the outcome from
// the BatchTransferExecuted event log. A reverted transaction maps to the
// Aborted variant.
func (w *ContractWallet) ExecuteBatchTransfer(ctx context.Context, req models.BatchTransferRequest) (models.BatchTransferOutcome, error) {
	opts := *w.provider.auth
	opts.Context = ctx

	revertOnFailure := req.Policy == models.FailurePolicyRevert
	tx, err := w.contract.Transact(&opts, "executeBatchTransfer",
		req.Asset, req.Recipients, req.Amounts, req.IntentID,
		new(big.Int).SetUint64(req.ExecutionIndex), revertOnFailure)
	if err != nil {
		return models.BatchTransferOutcome{}, fmt.Errorf("executeBatchTransfer transaction failed: %v", err)
	}

	receipt, err := bind.WaitMined(ctx, w.provider.client, tx)
	if err != nil {
		return models.BatchTransferOutcome{}, fmt.Errorf("waiting for batch transfer: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		// The wallet contract reverts the whole call under the revert
		// policy; surface that as the Aborted variant.
		return models.BatchTransferOutcome{Aborted: true}, nil
	}

	outcome, err := w.parseBatchEvent(receipt, req)
	if err != nil {
		return models.BatchTransferOutcome{}, err
	}
	return outcome, nil
}

func (w *ContractWallet) parseBatchEvent(receipt *types.Receipt, req models.BatchTransferRequest) (models.BatchTransferOutcome, error) {
	eventABI := w.provider.abi.Events["BatchTransferExecuted"]
	for _, lg := range receipt.Logs {
		if lg.Address != w.addr || len(lg.Topics) == 0 || lg.Topics[0] != eventABI.ID {
			continue
		}
		var parsed struct {
			ExecutionIndex *big.Int
			FailedAmount   *big.Int
			Outcomes       []bool
		}
		if err := w.contract.UnpackLog(&parsed, "BatchTransferExecuted", *lg); err != nil {
			return models.BatchTransferOutcome{}, fmt.Errorf("failed to unpack batch event: %v", err)
		}

		outcome := models.BatchTransferOutcome{
			FailedAmount: parsed.FailedAmount,
			Results:      make([]models.TransferResult, 0, len(req.Recipients)),
		}
		for i, r := range req.Recipients {
			result := models.TransferResult{
				Recipient: r,
				Amount:    new(big.Int).Set(req.Amounts[i]),
				Succeeded: i < len(parsed.Outcomes) && parsed.Outcomes[i],
			}
			if !result.Succeeded {
				result.Reason = "transfer failed on chain"
			}
			outcome.Results = append(outcome.Results, result)
		}
		return outcome, nil
	}
	return models.BatchTransferOutcome{}, fmt.Errorf("batch transfer event not found in receipt %s", receipt.TxHash.Hex())
}
