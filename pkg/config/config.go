package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const ConfigFileName = ".stakedash.json"

// Chain change policies applied by the session when the wallet switches networks.
const (
	PolicyRederive     = "rederive"
	PolicyReinitialize = "reinitialize"
)

// Wallet modes.
const (
	WalletModeRPC = "rpc"
	WalletModeKey = "key"
)

// CurrencyConfig describes the native currency of the target chain.
type CurrencyConfig struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkConfig holds the target chain the dashboard operates on.
type NetworkConfig struct {
	ChainID     int64          `json:"chain_id"`
	Name        string         `json:"name"`
	RPCURL      string         `json:"rpc_url"`
	ExplorerURL string         `json:"explorer_url,omitempty"`
	Currency    CurrencyConfig `json:"currency"`
	// FromBlock bounds the notification log scan, usually the staking
	// contract's deployment block.
	FromBlock uint64 `json:"from_block,omitempty"`
}

// ContractsConfig holds the deployed contract addresses.
type ContractsConfig struct {
	Staking      string `json:"staking"`
	ICO          string `json:"ico"`
	DepositToken string `json:"deposit_token"`
	RewardToken  string `json:"reward_token"`
}

// WalletConfig describes how the wallet is reached.
type WalletConfig struct {
	Mode                string `json:"mode"`
	Endpoint            string `json:"endpoint,omitempty"`
	PrivateKeyEnv       string `json:"private_key_env,omitempty"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

// GlobalConfig holds application-wide settings.
type GlobalConfig struct {
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds"`
	ConfirmTimeoutSeconds  int    `json:"confirm_timeout_seconds"`
	ChainChangePolicy      string `json:"chain_change_policy"`
	TokenDecimals          int    `json:"token_decimals"`
	AutoConnect            bool   `json:"auto_connect"`
	LogFile                string `json:"log_file,omitempty"`
	LogLevel               string `json:"log_level,omitempty"`
}

// Config is the full application configuration.
type Config struct {
	Network   NetworkConfig   `json:"network"`
	Contracts ContractsConfig `json:"contracts"`
	Wallet    WalletConfig    `json:"wallet"`
	Global    GlobalConfig    `json:"global"`
}

// RefreshInterval returns the dashboard refresh period.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Global.RefreshIntervalSeconds) * time.Second
}

// ConfirmTimeout returns the bound on transaction confirmation waits.
func (c Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Global.ConfirmTimeoutSeconds) * time.Second
}

// PollInterval returns how often the wallet is polled for account and chain changes.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Wallet.PollIntervalSeconds) * time.Second
}

// DefaultConfig returns a Sepolia configuration with no contracts set.
func DefaultConfig() Config {
	return Config{
		Network: NetworkConfig{
			ChainID:     11155111,
			Name:        "Sepolia",
			RPCURL:      "https://ethereum-sepolia-rpc.publicnode.com",
			ExplorerURL: "https://sepolia.etherscan.io",
			Currency:    CurrencyConfig{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		},
		Wallet: WalletConfig{
			Mode:                WalletModeRPC,
			PrivateKeyEnv:       "STAKEDASH_PRIVATE_KEY",
			PollIntervalSeconds: 2,
		},
		Global: GlobalConfig{
			RefreshIntervalSeconds: 30,
			ConfirmTimeoutSeconds:  120,
			ChainChangePolicy:      PolicyRederive,
			TokenDecimals:          4,
			AutoConnect:            true,
			LogLevel:               "info",
		},
	}
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// LoadConfigFromFile reads the config at path. A missing file yields the defaults.
func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

// LoadConfig decodes a config, filling unset fields with defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	var raw struct {
		Network   *NetworkConfig   `json:"network"`
		Contracts *ContractsConfig `json:"contracts"`
		Wallet    *struct {
			Mode                string `json:"mode"`
			Endpoint            string `json:"endpoint"`
			PrivateKeyEnv       string `json:"private_key_env"`
			PollIntervalSeconds *int   `json:"poll_interval_seconds"`
		} `json:"wallet"`
		Global *struct {
			RefreshIntervalSeconds *int   `json:"refresh_interval_seconds"`
			ConfirmTimeoutSeconds  *int   `json:"confirm_timeout_seconds"`
			ChainChangePolicy      string `json:"chain_change_policy"`
			TokenDecimals          *int   `json:"token_decimals"`
			AutoConnect            *bool  `json:"auto_connect"`
			LogFile                string `json:"log_file"`
			LogLevel               string `json:"log_level"`
		} `json:"global"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, err
	}

	if n := raw.Network; n != nil {
		if n.ChainID != 0 {
			cfg.Network.ChainID = n.ChainID
		}
		if n.Name != "" {
			cfg.Network.Name = n.Name
		}
		if n.RPCURL != "" {
			cfg.Network.RPCURL = n.RPCURL
		}
		if n.ExplorerURL != "" {
			cfg.Network.ExplorerURL = n.ExplorerURL
		}
		if n.Currency.Symbol != "" {
			cfg.Network.Currency = n.Currency
		}
		cfg.Network.FromBlock = n.FromBlock
	}
	if raw.Contracts != nil {
		cfg.Contracts = *raw.Contracts
	}
	if w := raw.Wallet; w != nil {
		if w.Mode != "" {
			cfg.Wallet.Mode = w.Mode
		}
		cfg.Wallet.Endpoint = w.Endpoint
		if w.PrivateKeyEnv != "" {
			cfg.Wallet.PrivateKeyEnv = w.PrivateKeyEnv
		}
		if w.PollIntervalSeconds != nil {
			cfg.Wallet.PollIntervalSeconds = *w.PollIntervalSeconds
		}
	}
	if g := raw.Global; g != nil {
		if g.RefreshIntervalSeconds != nil {
			cfg.Global.RefreshIntervalSeconds = *g.RefreshIntervalSeconds
		}
		if g.ConfirmTimeoutSeconds != nil {
			cfg.Global.ConfirmTimeoutSeconds = *g.ConfirmTimeoutSeconds
		}
		if g.ChainChangePolicy != "" {
			cfg.Global.ChainChangePolicy = g.ChainChangePolicy
		}
		if g.TokenDecimals != nil {
			cfg.Global.TokenDecimals = *g.TokenDecimals
		}
		if g.AutoConnect != nil {
			cfg.Global.AutoConnect = *g.AutoConnect
		}
		cfg.Global.LogFile = g.LogFile
		if g.LogLevel != "" {
			cfg.Global.LogLevel = g.LogLevel
		}
	}
	return cfg, nil
}

// ApplyEnv overrides config values from STAKEDASH_* environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv("STAKEDASH_CHAIN_ID")); v != "" {
		id, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid STAKEDASH_CHAIN_ID %q: %w", v, err)
		}
		cfg.Network.ChainID = id
	}
	if v := strings.TrimSpace(getenv("STAKEDASH_FROM_BLOCK")); v != "" {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid STAKEDASH_FROM_BLOCK %q: %w", v, err)
		}
		cfg.Network.FromBlock = n
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Network.Name, "STAKEDASH_NETWORK_NAME")
	set(&cfg.Network.RPCURL, "STAKEDASH_RPC_URL")
	set(&cfg.Network.ExplorerURL, "STAKEDASH_EXPLORER")
	set(&cfg.Contracts.Staking, "STAKEDASH_STAKING")
	set(&cfg.Contracts.ICO, "STAKEDASH_ICO")
	set(&cfg.Contracts.DepositToken, "STAKEDASH_DEPOSIT_TOKEN")
	set(&cfg.Contracts.RewardToken, "STAKEDASH_REWARD_TOKEN")
	set(&cfg.Wallet.Endpoint, "STAKEDASH_WALLET_URL")
	return nil
}

// Validate checks the structural sanity of a config.
func (c Config) Validate() error {
	if c.Network.ChainID < 0 {
		return fmt.Errorf("validation failed: chain id %d is negative", c.Network.ChainID)
	}
	if strings.TrimSpace(c.Network.RPCURL) == "" {
		return fmt.Errorf("validation failed: network has no RPC URL")
	}
	addrs := map[string]string{
		"staking":       c.Contracts.Staking,
		"ico":           c.Contracts.ICO,
		"deposit_token": c.Contracts.DepositToken,
		"reward_token":  c.Contracts.RewardToken,
	}
	for name, a := range addrs {
		if a != "" && !common.IsHexAddress(a) {
			return fmt.Errorf("validation failed: contract %s has invalid address %q", name, a)
		}
	}
	switch c.Wallet.Mode {
	case WalletModeRPC, WalletModeKey:
	default:
		return fmt.Errorf("validation failed: unknown wallet mode %q", c.Wallet.Mode)
	}
	switch c.Global.ChainChangePolicy {
	case PolicyRederive, PolicyReinitialize:
	default:
		return fmt.Errorf("validation failed: unknown chain change policy %q", c.Global.ChainChangePolicy)
	}
	return nil
}

func SaveConfig(cfg Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
