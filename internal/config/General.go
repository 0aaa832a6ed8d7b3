package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeRPC is the JSON-RPC endpoint of the target EVM node.
	NodeRPC string
	// ChainID is the numeric chain ID of the target network.
	ChainID int64

	// VaultAddress is the address of the vault contract this instance manages.
	VaultAddress string
	// AssetAddress is the address of the vault's underlying ERC-20 asset.
	AssetAddress string

	// SignerKey is the hex-encoded private key used to sign vault transactions.
	// The signer must be the vault owner or every cycle aborts before writing.
	SignerKey string

	// YieldAPIBaseURL is the base URL of the external yield data provider.
	YieldAPIBaseURL string
	// YieldAPIKey authenticates requests against the yield data provider.
	YieldAPIKey string

	// PoolsFile is the path to the static JSON file of tracked pools.
	PoolsFile string

	// WebPort is the listen port of the read-only reporting API.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	NodeRPC, err = getEnv("ROTOR_NODE_RPC")
	if err != nil {
		return err
	}

	ChainID, err = getEnvAsInt64("ROTOR_CHAIN_ID")
	if err != nil {
		return err
	}

	VaultAddress, err = getEnv("ROTOR_VAULT_ADDRESS")
	if err != nil {
		return err
	}

	AssetAddress, err = getEnv("ROTOR_ASSET_ADDRESS")
	if err != nil {
		return err
	}

	SignerKey, err = getEnv("ROTOR_SIGNER_KEY")
	if err != nil {
		return err
	}

	YieldAPIBaseURL, err = getEnv("YIELD_API_BASE_URL")
	if err != nil {
		return err
	}

	YieldAPIKey, err = getEnv("YIELD_API_KEY")
	if err != nil {
		return err
	}

	PoolsFile, err = getEnv("ROTOR_POOLS_FILE")
	if err != nil {
		return err
	}

	WebPort, err = getEnv("ROTOR_WEB_PORT")
	if err != nil {
		return err
	}

	log.Debug().
		Str("NodeRPC", NodeRPC).
		Int64("ChainID", ChainID).
		Str("VaultAddress", VaultAddress).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}
