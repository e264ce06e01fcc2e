package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
)

var errKeyWalletFixedChain = errors.New("a key wallet follows network.rpc_url and cannot change networks")

// KeyWallet signs locally with a private key and reads through a plain RPC node.
// It always has exactly one account and its chain is whatever the node serves.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	client  *ethclient.Client
	log     *log.Logger

	accountsFeed event.Feed
	chainFeed    event.Feed
}

func NewKeyWallet(key *ecdsa.PrivateKey, client *ethclient.Client, logger *log.Logger) *KeyWallet {
	if logger == nil {
		logger = log.Default()
	}
	addr := signerAddress(key)
	return &KeyWallet{
		key:     key,
		address: addr,
		client:  client,
		log:     logger.With("wallet", "key", "account", addr.Hex()),
	}
}

func (k *KeyWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{k.address}, nil
}

func (k *KeyWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{k.address}, nil
}

func (k *KeyWallet) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := k.client.ChainID(ctx)
	if err != nil {
		return nil, Classify("eth_chainId", err)
	}
	return id, nil
}

func (k *KeyWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	return &Error{Kind: KindNetworkSwitchFailed, Op: "wallet_switchEthereumChain", Code: CodeUnsupportedMethod, Err: errKeyWalletFixedChain}
}

func (k *KeyWallet) AddChain(ctx context.Context, params ChainParams) error {
	return &Error{Kind: KindNetworkSwitchFailed, Op: "wallet_addEthereumChain", Code: CodeUnsupportedMethod, Err: errKeyWalletFixedChain}
}

func (k *KeyWallet) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return k.accountsFeed.Subscribe(ch)
}

func (k *KeyWallet) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return k.chainFeed.Subscribe(ch)
}

func (k *KeyWallet) Backend() Backend { return k.client }

func (k *KeyWallet) SignerFn(from common.Address, chainID *big.Int) bind.SignerFn {
	signer := types.LatestSignerForChainID(chainID)
	return func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if addr != from || addr != k.address {
			return nil, fmt.Errorf("key wallet %s cannot sign for %s", k.address.Hex(), addr.Hex())
		}
		return types.SignTx(tx, signer, k.key)
	}
}

func (k *KeyWallet) Close() { k.client.Close() }
