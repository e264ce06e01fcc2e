package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// SignTimeout bounds how long a signature request may wait for user approval.
var SignTimeout = 5 * time.Minute

// RPCWallet is a wallet reached over JSON-RPC (a signer daemon or wallet bridge
// exposing the EIP-1193 method set). It serves chain reads through the same
// endpoint.
type RPCWallet struct {
	client *rpc.Client
	eth    *ethclient.Client
	log    *log.Logger
	poll   time.Duration

	accountsFeed event.Feed
	chainFeed    event.Feed

	quit      chan struct{}
	closeOnce sync.Once
}

// DialRPC connects to the wallet at endpoint and verifies it answers eth_chainId.
// A positive poll interval starts the change watcher.
func DialRPC(ctx context.Context, endpoint string, poll time.Duration, logger *log.Logger) (*RPCWallet, error) {
	if logger == nil {
		logger = log.Default()
	}
	dctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	client, err := rpc.DialContext(dctx, endpoint)
	if err != nil {
		return nil, unavailable("dial", "cannot reach wallet at %s: %v", endpoint, err)
	}
	w := &RPCWallet{
		client: client,
		eth:    ethclient.NewClient(client),
		log:    logger.With("wallet", endpoint),
		poll:   poll,
		quit:   make(chan struct{}),
	}
	if _, err := w.ChainID(dctx); err != nil {
		client.Close()
		return nil, unavailable("dial", "wallet at %s did not answer eth_chainId: %v", endpoint, err)
	}
	if poll > 0 {
		go w.pollingLoop()
	}
	return w, nil
}

func (w *RPCWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	if code, ok := Code(err); ok && code == CodeMethodNotFound {
		w.log.Debug("eth_requestAccounts unsupported, falling back to eth_accounts")
		return w.Accounts(ctx)
	}
	if err != nil {
		return nil, Classify("eth_requestAccounts", err)
	}
	return accounts, nil
}

func (w *RPCWallet) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, Classify("eth_accounts", err)
	}
	return accounts, nil
}

func (w *RPCWallet) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, Classify("eth_chainId", err)
	}
	return id.ToInt(), nil
}

func (w *RPCWallet) SwitchChain(ctx context.Context, chainID *big.Int) error {
	param := map[string]string{"chainId": hexutil.EncodeBig(chainID)}
	if err := w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", param); err != nil {
		return Classify("wallet_switchEthereumChain", err)
	}
	return nil
}

func (w *RPCWallet) AddChain(ctx context.Context, params ChainParams) error {
	if err := w.client.CallContext(ctx, nil, "wallet_addEthereumChain", params); err != nil {
		return Classify("wallet_addEthereumChain", err)
	}
	return nil
}

func (w *RPCWallet) SubscribeAccountsChanged(ch chan<- []common.Address) event.Subscription {
	return w.accountsFeed.Subscribe(ch)
}

func (w *RPCWallet) SubscribeChainChanged(ch chan<- *big.Int) event.Subscription {
	return w.chainFeed.Subscribe(ch)
}

func (w *RPCWallet) Backend() Backend { return w.eth }

// SignerFn signs through eth_signTransaction. The wallet may answer with the raw
// encoding or an object carrying it.
func (w *RPCWallet) SignerFn(from common.Address, chainID *big.Int) bind.SignerFn {
	signer := types.LatestSignerForChainID(chainID)
	return func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if addr != from {
			return nil, fmt.Errorf("signer for %s cannot sign for %s", from.Hex(), addr.Hex())
		}
		ctx, cancel := context.WithTimeout(context.Background(), SignTimeout)
		defer cancel()

		var res json.RawMessage
		if err := w.client.CallContext(ctx, &res, "eth_signTransaction", toSendTxArgs(from, chainID, tx)); err != nil {
			return nil, Classify("eth_signTransaction", err)
		}
		raw, err := decodeSigned(res)
		if err != nil {
			return nil, err
		}
		signed := new(types.Transaction)
		if err := signed.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("decode signed transaction: %w", err)
		}
		sender, err := types.Sender(signer, signed)
		if err != nil {
			return nil, fmt.Errorf("recover signer: %w", err)
		}
		if sender != from {
			return nil, fmt.Errorf("wallet signed with %s, expected %s", sender.Hex(), from.Hex())
		}
		return signed, nil
	}
}

// Close stops the change watcher and the connection.
func (w *RPCWallet) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
		w.client.Close()
	})
}

type sendTxArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

func toSendTxArgs(from common.Address, chainID *big.Int, tx *types.Transaction) sendTxArgs {
	args := sendTxArgs{
		From:    from,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Data:    tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}

func decodeSigned(res json.RawMessage) ([]byte, error) {
	var raw hexutil.Bytes
	if err := json.Unmarshal(res, &raw); err == nil {
		return raw, nil
	}
	var obj struct {
		Raw hexutil.Bytes `json:"raw"`
	}
	if err := json.Unmarshal(res, &obj); err != nil || len(obj.Raw) == 0 {
		return nil, errors.New("wallet returned no signed transaction")
	}
	return obj.Raw, nil
}

// pollingLoop turns eth_accounts and eth_chainId changes into notifications.
// The first successful poll only records the baseline.
func (w *RPCWallet) pollingLoop() {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var (
		accounts    []common.Address
		chainID     *big.Int
		initialized bool
	)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), w.poll)
		curAccounts, accErr := w.Accounts(ctx)
		curChain, chainErr := w.ChainID(ctx)
		cancel()

		switch {
		case accErr != nil || chainErr != nil:
			w.log.Debug("wallet poll failed", "accounts_err", accErr, "chain_err", chainErr)
		case !initialized:
			accounts, chainID, initialized = curAccounts, curChain, true
		default:
			if chainID.Cmp(curChain) != 0 {
				chainID = curChain
				w.chainFeed.Send(new(big.Int).Set(curChain))
			}
			if !slices.Equal(accounts, curAccounts) {
				accounts = curAccounts
				w.accountsFeed.Send(slices.Clone(curAccounts))
			}
		}

		select {
		case <-ticker.C:
		case <-w.quit:
			return
		}
	}
}
