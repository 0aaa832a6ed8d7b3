package vault

import (
	"context"
	"math/big"

	"github.com/meridianyield/rotor/internal/types"
)

// VaultManager defines the interface for interacting with the vault contract.
// This interface abstracts away the specific implementation details of vault
// operations, allowing for different implementations (live, simulation, etc.).
type VaultManager interface {
	// VaultAddress returns the vault contract address, lower-case.
	VaultAddress() string

	// AssetAddress returns the vault's underlying asset address, lower-case.
	AssetAddress() string

	// SignerAddress returns the address of the configured signing key.
	SignerAddress() string

	// Owner returns the vault's current owner address, read from the chain.
	Owner(ctx context.Context) (string, error)

	// IdleBalance returns the asset balance held directly by the vault.
	IdleBalance(ctx context.Context) (*big.Int, error)

	// PoolAllocation returns the vault's allocation in a single pool.
	PoolAllocation(ctx context.Context, poolAddress string) (*big.Int, error)

	// TotalAssets returns the vault-reported total of idle plus allocated funds.
	TotalAssets(ctx context.Context) (*big.Int, error)

	// WithdrawFromVault pulls the given amount out of a pool back into the
	// vault. The call waits for inclusion and returns the confirmed result.
	WithdrawFromVault(ctx context.Context, poolAddress string, amount *big.Int) (*types.TransactionResult, error)

	// Reallocate deposits the given amount from the vault's idle balance into
	// a pool. The call waits for inclusion and returns the confirmed result.
	Reallocate(ctx context.Context, poolAddress string, amount *big.Int) (*types.TransactionResult, error)

	// Close cleans up any resources used by the vault manager.
	Close() error
}
