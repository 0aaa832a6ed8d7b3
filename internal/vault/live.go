/*

This file contains the live vault manager: the only component that talks to
the chain. All reads go through contract view calls; all writes are signed
with the configured key and waited to inclusion before returning.

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/meridianyield/rotor/internal/logger"
	"github.com/meridianyield/rotor/internal/types"
	"github.com/rs/zerolog"
)

var ErrTransactionReverted = errors.New("transaction reverted on chain")

const vaultABIJSON = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"totalAssets","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allocationOf","stateMutability":"view","inputs":[{"name":"pool","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"withdrawFromVault","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"reallocate","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// LiveVaultManager implements VaultManager against a real EVM node.
type LiveVaultManager struct {
	client *ethclient.Client

	vaultAddr common.Address
	assetAddr common.Address
	chainID   *big.Int

	vault *bind.BoundContract
	asset *bind.BoundContract

	auth       *bind.TransactOpts
	signerAddr common.Address

	logger zerolog.Logger
}

// NewLiveVaultManager dials the node and binds the vault and asset contracts.
// signerKeyHex is the hex-encoded private key without the 0x prefix.
func NewLiveVaultManager(rpcURL string, chainID int64, vaultAddress string, assetAddress string, signerKeyHex string) (*LiveVaultManager, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node %s: %w", rpcURL, err)
	}

	vaultABI, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(signerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	id := big.NewInt(chainID)
	auth, err := bind.NewKeyedTransactorWithChainID(key, id)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}

	vaultAddr := common.HexToAddress(vaultAddress)
	assetAddr := common.HexToAddress(assetAddress)

	return &LiveVaultManager{
		client:     client,
		vaultAddr:  vaultAddr,
		assetAddr:  assetAddr,
		chainID:    id,
		vault:      bind.NewBoundContract(vaultAddr, vaultABI, client, client, client),
		asset:      bind.NewBoundContract(assetAddr, erc20ABI, client, client, client),
		auth:       auth,
		signerAddr: crypto.PubkeyToAddress(key.PublicKey),
		logger:     logger.GetForComponent("vault"),
	}, nil
}

func (m *LiveVaultManager) VaultAddress() string {
	return strings.ToLower(m.vaultAddr.Hex())
}

func (m *LiveVaultManager) AssetAddress() string {
	return strings.ToLower(m.assetAddr.Hex())
}

func (m *LiveVaultManager) SignerAddress() string {
	return strings.ToLower(m.signerAddr.Hex())
}

func (m *LiveVaultManager) Owner(ctx context.Context) (string, error) {
	var out []interface{}
	err := m.vault.Call(&bind.CallOpts{Context: ctx}, &out, "owner")
	if err != nil {
		return "", fmt.Errorf("owner() call failed: %w", err)
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("owner() returned unexpected type %T", out[0])
	}
	return strings.ToLower(owner.Hex()), nil
}

func (m *LiveVaultManager) IdleBalance(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	err := m.asset.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", m.vaultAddr)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(vault) call failed: %w", err)
	}
	return asBigInt(out)
}

func (m *LiveVaultManager) PoolAllocation(ctx context.Context, poolAddress string) (*big.Int, error) {
	var out []interface{}
	err := m.vault.Call(&bind.CallOpts{Context: ctx}, &out, "allocationOf", common.HexToAddress(poolAddress))
	if err != nil {
		return nil, fmt.Errorf("allocationOf(%s) call failed: %w", poolAddress, err)
	}
	return asBigInt(out)
}

func (m *LiveVaultManager) TotalAssets(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	err := m.vault.Call(&bind.CallOpts{Context: ctx}, &out, "totalAssets")
	if err != nil {
		return nil, fmt.Errorf("totalAssets() call failed: %w", err)
	}
	return asBigInt(out)
}

func (m *LiveVaultManager) WithdrawFromVault(ctx context.Context, poolAddress string, amount *big.Int) (*types.TransactionResult, error) {
	m.logger.Info().
		Str("pool", poolAddress).
		Str("amount", amount.String()).
		Msg("Submitting withdrawFromVault transaction")
	return m.transact(ctx, "withdrawFromVault", common.HexToAddress(poolAddress), amount)
}

func (m *LiveVaultManager) Reallocate(ctx context.Context, poolAddress string, amount *big.Int) (*types.TransactionResult, error) {
	m.logger.Info().
		Str("pool", poolAddress).
		Str("amount", amount.String()).
		Msg("Submitting reallocate transaction")
	return m.transact(ctx, "reallocate", common.HexToAddress(poolAddress), amount)
}

func (m *LiveVaultManager) Close() error {
	m.client.Close()
	return nil
}

// transact submits one state-changing call and blocks until it is mined.
// A mined-but-reverted transaction returns both a populated result and
// ErrTransactionReverted so the caller can record the hash.
func (m *LiveVaultManager) transact(ctx context.Context, method string, args ...interface{}) (*types.TransactionResult, error) {
	opts := *m.auth
	opts.Context = ctx

	tx, err := m.vault.Transact(&opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s transaction failed to submit: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, m.client, tx)
	if err != nil {
		return &types.TransactionResult{
			TxHash:       tx.Hash().Hex(),
			Success:      false,
			ErrorMessage: err.Error(),
		}, fmt.Errorf("waiting for %s inclusion failed: %w", method, err)
	}

	result := &types.TransactionResult{
		TxHash:      receipt.TxHash.Hex(),
		GasUsed:     receipt.GasUsed,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Success:     receipt.Status == ethtypes.ReceiptStatusSuccessful,
	}
	if !result.Success {
		result.ErrorMessage = "transaction reverted"
		m.logger.Error().
			Str("txHash", result.TxHash).
			Str("method", method).
			Msg("Transaction mined but reverted")
		return result, fmt.Errorf("%s: %w", method, ErrTransactionReverted)
	}

	m.logger.Info().
		Str("txHash", result.TxHash).
		Uint64("gasUsed", result.GasUsed).
		Str("method", method).
		Msg("Transaction confirmed")
	return result, nil
}

func asBigInt(out []interface{}) (*big.Int, error) {
	if len(out) == 0 {
		return nil, errors.New("empty contract call result")
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("contract call returned unexpected type %T", out[0])
	}
	return value, nil
}
