package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/meridianyield/rotor/internal/automation"
	"github.com/meridianyield/rotor/internal/config"
	"github.com/meridianyield/rotor/internal/datafetcher"
	"github.com/meridianyield/rotor/internal/logger"
	"github.com/meridianyield/rotor/internal/state"
	"github.com/meridianyield/rotor/internal/tracker"
	"github.com/meridianyield/rotor/internal/vault"
	"github.com/meridianyield/rotor/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	LOOP_INTERVAL = 5 * time.Minute
)

// main is the entry point for the rotor.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		if err := logger.AttachFileOutput(logFile); err != nil {
			log.Warn().Err(err).Str("path", logFile).Msg("Could not open log file, console only")
		}
	}
	log.Info().Msg("Rotor starting...")

	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	pools, err := config.LoadPools(config.PoolsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load tracked pools")
	}
	log.Info().Int("pools", len(pools)).Msg("Tracked pool universe loaded")

	// --- 2. Vault Manager Initialization (with Safety Switch) ---
	var vm vault.VaultManager
	if os.Getenv("ROTOR_MODE") == "live" {
		log.Warn().Msg("Initializing rotor in LIVE mode. Real transactions will be broadcast.")
		liveVault, err := vault.NewLiveVaultManager(
			config.NodeRPC, config.ChainID,
			config.VaultAddress, config.AssetAddress,
			config.SignerKey,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize live vault manager")
		}
		vm = liveVault
	} else {
		log.Fatal().Msg("ROTOR_MODE is not set to 'live'. Halting to prevent accidental execution. Set ROTOR_MODE=live to run.")
	}
	defer vm.Close()
	log.Info().
		Str("vault", vm.VaultAddress()).
		Str("signer", vm.SignerAddress()).
		Msg("Vault manager initialized")

	// --- 3. Wire the pipeline ---
	yieldClient := datafetcher.NewYieldClient(config.YieldAPIBaseURL, config.YieldAPIKey)
	poolTracker := tracker.NewTracker(pools, yieldClient, state.PgSnapshotStore{})
	executor := vault.NewExecutor(vm, config.DefaultStrategyParameters)
	automator := automation.NewAutomator(poolTracker, executor, vm, config.DefaultStrategyParameters)

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, automator)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Automation Loop ---
	log.Info().Str("interval", LOOP_INTERVAL.String()).Msg("Starting automation loop")
	automator.RunLoop(context.Background(), LOOP_INTERVAL)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
