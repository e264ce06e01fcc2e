// Package wallet is the host wallet boundary: account permission requests, chain
// identity and switching, transaction signing and change notifications.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"os"
	"strings"
	"time"

	"stakedash/pkg/config"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
)

// DialTimeout bounds wallet discovery.
var DialTimeout = 8 * time.Second

// Backend is the chain access a connected wallet exposes to contract bindings.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// NativeCurrency is the wallet_addEthereumChain currency descriptor.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainParams is the wallet_addEthereumChain parameter object.
type ChainParams struct {
	ChainID           *hexutil.Big   `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// ChainParamsFromConfig describes the configured target network.
func ChainParamsFromConfig(n config.NetworkConfig) ChainParams {
	p := ChainParams{
		ChainID:   (*hexutil.Big)(big.NewInt(n.ChainID)),
		ChainName: n.Name,
		RPCURLs:   []string{n.RPCURL},
		NativeCurrency: NativeCurrency{
			Name:     n.Currency.Name,
			Symbol:   n.Currency.Symbol,
			Decimals: n.Currency.Decimals,
		},
	}
	if n.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{n.ExplorerURL}
	}
	return p
}

// Provider is a reachable host wallet.
type Provider interface {
	// RequestAccounts asks for account permission, prompting the user if needed.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already permitted accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainID *big.Int) error
	AddChain(ctx context.Context, params ChainParams) error
	SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription
	SubscribeChainChanged(ch chan<- *big.Int) event.Subscription
	Backend() Backend
	SignerFn(from common.Address, chainID *big.Int) bind.SignerFn
	Close()
}

// Detector locates the host wallet. It fails with ErrProviderUnavailable when
// none is reachable.
type Detector func(ctx context.Context) (Provider, error)

// NewDetector returns the detector for the configured wallet mode.
func NewDetector(cfg config.Config, logger *log.Logger) Detector {
	if cfg.Wallet.Mode == config.WalletModeKey {
		return func(ctx context.Context) (Provider, error) {
			return detectKey(ctx, cfg, os.Getenv, logger)
		}
	}
	return func(ctx context.Context) (Provider, error) {
		endpoint := strings.TrimSpace(cfg.Wallet.Endpoint)
		if endpoint == "" {
			return nil, unavailable("detect",
				"no wallet endpoint configured; set wallet.endpoint in the config file or STAKEDASH_WALLET_URL to your signer's RPC address")
		}
		w, err := DialRPC(ctx, endpoint, cfg.PollInterval(), logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

func detectKey(ctx context.Context, cfg config.Config, getenv func(string) string, logger *log.Logger) (Provider, error) {
	hexKey := strings.TrimSpace(getenv(cfg.Wallet.PrivateKeyEnv))
	if hexKey == "" {
		return nil, unavailable("detect", "no private key found; export %s or switch wallet.mode to %q", cfg.Wallet.PrivateKeyEnv, config.WalletModeRPC)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, unavailable("detect", "invalid private key in %s: %v", cfg.Wallet.PrivateKeyEnv, err)
	}
	dctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	client, err := ethclient.DialContext(dctx, cfg.Network.RPCURL)
	if err != nil {
		return nil, unavailable("detect", "dial %s: %v", cfg.Network.RPCURL, err)
	}
	if _, err := client.ChainID(dctx); err != nil {
		client.Close()
		return nil, unavailable("detect", "chain id from %s: %v", cfg.Network.RPCURL, err)
	}
	return NewKeyWallet(key, client, logger), nil
}

func signerAddress(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
