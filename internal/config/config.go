package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"axalportal/internal/contracts"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig groups every setting the portal and the APY probe read from the environment.
type AppConfig struct {
	Service   ServiceConfig
	Chain     ChainConfig
	Contracts ContractsConfig
	Portal    PortalConfig
}

type ServiceConfig struct {
	HTTPPort        int           `envconfig:"API_HTTP_PORT" default:"3000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// APISecret enables HMAC verification on the mutating JSON routes.
	APISecret     string        `envconfig:"PORTAL_API_SECRET"`
	HMACClockSkew time.Duration `envconfig:"HMAC_CLOCK_SKEW" default:"60s"`

	IdempotencyBackend   string        `envconfig:"IDEMPOTENCY_BACKEND" default:"memory"`
	IdempotencyWindow    time.Duration `envconfig:"IDEMPOTENCY_WINDOW" default:"10m"`
	IdempotencyStorePath string        `envconfig:"IDEMPOTENCY_STORE_PATH"`
	IdempotencyDSN       string        `envconfig:"IDEMPOTENCY_POSTGRES_DSN"`
}

type ChainConfig struct {
	RPCURL              string        `envconfig:"CHAIN_RPC_URL"`
	PrivateKey          string        `envconfig:"CHAIN_PRIVATE_KEY"`
	ChainID             int64         `envconfig:"CHAIN_ID"`
	ReceiptPollInterval time.Duration `envconfig:"RECEIPT_POLL_INTERVAL" default:"2s"`
}

type ContractsConfig struct {
	// Balance falls back to Claim when unset; early deployments used one contract.
	Balance     string `envconfig:"BALANCE_CONTRACT_ADDRESS"`
	Claim       string `envconfig:"CLAIM_CONTRACT_ADDRESS"`
	ClaimMethod string `envconfig:"CLAIM_METHOD" default:"claimReward"`
	LendingPool string `envconfig:"LENDING_POOL_ADDRESS"`
}

type PortalConfig struct {
	CustomerAddress     string        `envconfig:"CUSTOMER_ADDRESS"`
	ExplorerTxURL       string        `envconfig:"EXPLORER_TX_URL" default:"https://sepolia.etherscan.io/tx/{txHash}"`
	TokenSymbol         string        `envconfig:"TOKEN_SYMBOL" default:"AXAL"`
	ReconcileDelay      time.Duration `envconfig:"RECONCILE_DELAY" default:"5s"`
	OptimisticIncrement int64         `envconfig:"OPTIMISTIC_INCREMENT" default:"10"`
	DefaultAPY          uint64        `envconfig:"DEFAULT_APY_THRESHOLD" default:"5"`
	DefaultTVL          uint64        `envconfig:"DEFAULT_TVL_THRESHOLD" default:"5000"`
}

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

const defaultEnvFile = ".env"

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment take precedence over the file.
func Load() (*AppConfig, error) {
	envFile := envOr("PORTAL_ENV_FILE", defaultEnvFile)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	var cfg AppConfig
	groups := []struct {
		name   string
		target interface{}
	}{
		{"service", &cfg.Service},
		{"chain", &cfg.Chain},
		{"contracts", &cfg.Contracts},
		{"portal", &cfg.Portal},
	}
	for _, g := range groups {
		if err := envconfig.Process("", g.target); err != nil {
			return nil, fmt.Errorf("load %s config: %w", g.name, err)
		}
	}

	if cfg.Contracts.Balance == "" {
		cfg.Contracts.Balance = cfg.Contracts.Claim
	}
	if cfg.Service.IdempotencyStorePath == "" {
		cfg.Service.IdempotencyStorePath = filepath.Join(os.TempDir(), "axal-claims.json")
	}
	cfg.Service.IdempotencyBackend = strings.ToLower(strings.TrimSpace(cfg.Service.IdempotencyBackend))

	return &cfg, nil
}

// Validate checks what the portal server needs before it starts. Values are
// only checked for presence and shape; nothing is resolved on chain.
func (c *AppConfig) Validate() error {
	if c.Portal.CustomerAddress == "" {
		return errors.New("CUSTOMER_ADDRESS is required")
	}
	if !common.IsHexAddress(c.Portal.CustomerAddress) {
		return fmt.Errorf("CUSTOMER_ADDRESS %q is not a hex address", c.Portal.CustomerAddress)
	}
	if c.Chain.PrivateKey != "" {
		if c.Chain.RPCURL == "" {
			return errors.New("CHAIN_RPC_URL is required when CHAIN_PRIVATE_KEY is set")
		}
		if c.Contracts.Claim == "" {
			return errors.New("CLAIM_CONTRACT_ADDRESS is required when CHAIN_PRIVATE_KEY is set")
		}
	}
	switch c.Contracts.ClaimMethod {
	case contracts.MethodClaimReward, contracts.MethodVerifyAndClaim:
	default:
		return fmt.Errorf("CLAIM_METHOD %q must be claimReward or verifyAndClaim", c.Contracts.ClaimMethod)
	}
	switch c.Service.IdempotencyBackend {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		if c.Service.IdempotencyDSN == "" {
			return errors.New("IDEMPOTENCY_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", c.Service.IdempotencyBackend)
	}
	if c.Portal.ReconcileDelay <= 0 {
		return errors.New("RECONCILE_DELAY must be positive")
	}
	return nil
}

// HasSigner reports whether a signing key was supplied.
func (c *AppConfig) HasSigner() bool {
	return c.Chain.PrivateKey != ""
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
