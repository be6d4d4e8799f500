// Package chains holds the per-chain configuration the safe and relayer
// subsystems run on: RPC endpoints, platform signing keys, gas policy and
// the addresses of the shared contracts.
package chains

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

var (
	// ErrChainNotConfigured is returned when an operation targets a chain id
	// missing from the configuration. Fatal at first use, not retryable.
	ErrChainNotConfigured = errors.New("chain not configured")

	// ErrContractNotConfigured is returned when a required shared contract
	// address is missing for a chain.
	ErrContractNotConfigured = errors.New("contract not configured")
)

// Contracts are the shared platform contracts per chain.
type Contracts struct {
	// MultiSend is the call-batching contract invoked via DELEGATECALL.
	MultiSend string `yaml:"multi_send"`
	// Module is the automation module wallets enable for signature-less
	// execution.
	Module string `yaml:"module"`
}

// Chain is one configured network.
type Chain struct {
	ChainID int64  `yaml:"chain_id"`
	Name    string `yaml:"name"`
	RPCURL  string `yaml:"rpc_url"`

	// RelayerKey is the platform signing key in hex. ${VAR} references are
	// expanded from the environment at load time so keys stay out of files.
	RelayerKey string `yaml:"relayer_key"`

	// UserPaysGas marks chains where transactions are returned to the
	// client for submission instead of going through the relayer.
	UserPaysGas bool `yaml:"user_pays_gas"`

	// Gas and confirmation policy for the relayer.
	GasMarginPercent    int64         `yaml:"gas_margin_percent"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	MaxSendAttempts     int           `yaml:"max_send_attempts"`

	Contracts Contracts `yaml:"contracts"`
}

// Config is the full chain configuration document.
type Config struct {
	Chains []Chain `yaml:"chains"`

	byID map[int64]*Chain
}

// Defaults applied to zero-valued policy fields.
const (
	DefaultGasMarginPercent    = 20
	DefaultConfirmationTimeout = 2 * time.Minute
	DefaultPollInterval        = 3 * time.Second
	DefaultMaxSendAttempts     = 3
)

// Load reads, env-expands and validates a YAML chain configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.UnmarshalWithOptions([]byte(expanded), &cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse chain config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.byID = make(map[int64]*Chain, len(cfg.Chains))

	for i := range cfg.Chains {
		chain := &cfg.Chains[i]
		applyDefaults(chain)
		cfg.byID[chain.ChainID] = chain
	}

	return &cfg, nil
}

func applyDefaults(chain *Chain) {
	if chain.GasMarginPercent == 0 {
		chain.GasMarginPercent = DefaultGasMarginPercent
	}

	if chain.ConfirmationTimeout == 0 {
		chain.ConfirmationTimeout = DefaultConfirmationTimeout
	}

	if chain.PollInterval == 0 {
		chain.PollInterval = DefaultPollInterval
	}

	if chain.MaxSendAttempts == 0 {
		chain.MaxSendAttempts = DefaultMaxSendAttempts
	}
}

func (c *Config) validate() error {
	if len(c.Chains) == 0 {
		return errors.New("chain config declares no chains")
	}

	seen := make(map[int64]bool, len(c.Chains))

	for _, chain := range c.Chains {
		if chain.ChainID <= 0 {
			return fmt.Errorf("chain %q: chain_id must be positive", chain.Name)
		}

		if seen[chain.ChainID] {
			return fmt.Errorf("chain id %d configured twice", chain.ChainID)
		}

		seen[chain.ChainID] = true

		if chain.RPCURL == "" {
			return fmt.Errorf("chain %d: rpc_url is required", chain.ChainID)
		}

		if !chain.UserPaysGas && chain.RelayerKey == "" {
			return fmt.Errorf("chain %d: relayer_key is required unless user_pays_gas", chain.ChainID)
		}
	}

	return nil
}

// ByID returns the chain for an id or ErrChainNotConfigured.
func (c *Config) ByID(chainID int64) (*Chain, error) {
	chain, ok := c.byID[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChainNotConfigured, chainID)
	}

	return chain, nil
}

// MultiSendAddress returns the MultiSend contract for a chain.
func (c *Chain) MultiSendAddress() (string, error) {
	if c.Contracts.MultiSend == "" {
		return "", fmt.Errorf("%w: multi_send on chain %d", ErrContractNotConfigured, c.ChainID)
	}

	return c.Contracts.MultiSend, nil
}

// ModuleAddress returns the automation module contract for a chain.
func (c *Chain) ModuleAddress() (string, error) {
	if c.Contracts.Module == "" {
		return "", fmt.Errorf("%w: module on chain %d", ErrContractNotConfigured, c.ChainID)
	}

	return c.Contracts.Module, nil
}
