package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"stakedash/pkg/config"
	"stakedash/pkg/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var testAccount = common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7")

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		is   error
	}{
		{"rejected", &Error{Kind: KindUserRejected}, KindUserRejected, ErrUserRejected},
		{"deadline", context.DeadlineExceeded, KindProviderUnavailable, ErrProviderUnavailable},
		{"plain", errors.New("boom"), KindUnknown, ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("op", tt.err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.ErrorIs(t, err, tt.is)
		})
	}
	assert.NoError(t, Classify("op", nil))
}

func TestRPCWallet_RequestAccounts(t *testing.T) {
	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		switch method {
		case "eth_chainId":
			return "0xaa36a7", nil
		case "eth_requestAccounts":
			return []string{testAccount.Hex()}, nil
		}
		return nil, &testutil.RPCError{Code: CodeMethodNotFound, Message: "not found"}
	})

	w, err := DialRPC(context.Background(), srv.URL, 0, nil)
	require.NoError(t, err)
	defer w.Close()

	accounts, err := w.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{testAccount}, accounts)

	id, err := w.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), id.Int64())
}

func TestRPCWallet_Rejected(t *testing.T) {
	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		switch method {
		case "eth_chainId":
			return "0x1", nil
		case "eth_requestAccounts":
			return nil, &testutil.RPCError{Code: CodeUserRejected, Message: "User rejected the request."}
		case "wallet_switchEthereumChain":
			return nil, &testutil.RPCError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
		}
		return nil, nil
	})

	w, err := DialRPC(context.Background(), srv.URL, 0, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)
	code, ok := Code(err)
	assert.True(t, ok)
	assert.Equal(t, CodeUserRejected, code)

	err = w.SwitchChain(context.Background(), big.NewInt(31337))
	require.Error(t, err)
	code, _ = Code(err)
	assert.Equal(t, CodeUnrecognizedChain, code)
}

func TestRPCWallet_FallsBackToAccounts(t *testing.T) {
	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		switch method {
		case "eth_chainId":
			return "0x1", nil
		case "eth_accounts":
			return []string{testAccount.Hex()}, nil
		}
		return nil, &testutil.RPCError{Code: CodeMethodNotFound, Message: "the method does not exist"}
	})

	w, err := DialRPC(context.Background(), srv.URL, 0, nil)
	require.NoError(t, err)
	defer w.Close()

	accounts, err := w.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{testAccount}, accounts)
	assert.Equal(t, 1, srv.Calls("eth_requestAccounts"))
	assert.Equal(t, 1, srv.Calls("eth_accounts"))
}

func TestDialRPC_Unavailable(t *testing.T) {
	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		return nil, &testutil.RPCError{Code: CodeDisconnected, Message: "disconnected"}
	})

	_, err := DialRPC(context.Background(), srv.URL, 0, nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestNewDetector_NoEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Wallet.Endpoint = ""

	_, err := NewDetector(cfg, nil)(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "STAKEDASH_WALLET_URL")
}

func TestRPCWallet_SignerFn(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	chainID := big.NewInt(31337)

	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		switch method {
		case "eth_chainId":
			return "0x7a69", nil
		case "eth_signTransaction":
			var args sendTxArgs
			if err := json.Unmarshal(params[0], &args); err != nil {
				return nil, &testutil.RPCError{Code: -32602, Message: err.Error()}
			}
			tx := types.NewTx(&types.LegacyTx{
				Nonce:    uint64(args.Nonce),
				To:       args.To,
				Gas:      uint64(args.Gas),
				GasPrice: args.GasPrice.ToInt(),
				Value:    args.Value.ToInt(),
				Data:     args.Data,
			})
			signed, err := types.SignTx(tx, types.LatestSignerForChainID(args.ChainID.ToInt()), key)
			if err != nil {
				return nil, &testutil.RPCError{Code: -32000, Message: err.Error()}
			}
			raw, _ := signed.MarshalBinary()
			return map[string]any{"raw": hexutil.Encode(raw)}, nil
		}
		return nil, nil
	})

	w, err := DialRPC(context.Background(), srv.URL, 0, nil)
	require.NoError(t, err)
	defer w.Close()

	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tx := types.NewTx(&types.LegacyTx{Nonce: 7, To: &to, Gas: 60000, GasPrice: big.NewInt(1e9), Value: big.NewInt(0), Data: []byte{0xde, 0xad}})

	signed, err := w.SignerFn(testAccount, chainID)(testAccount, tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), signed.Nonce())
	assert.Equal(t, []byte{0xde, 0xad}, signed.Data())

	_, err = w.SignerFn(testAccount, chainID)(common.HexToAddress("0x01"), tx)
	assert.Error(t, err)
}

func TestRPCWallet_PollsForChanges(t *testing.T) {
	var accountsVersion atomic.Int32
	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		switch method {
		case "eth_chainId":
			if accountsVersion.Load() > 0 {
				return "0x7a69", nil
			}
			return "0x1", nil
		case "eth_accounts":
			if accountsVersion.Load() > 0 {
				return []string{}, nil
			}
			return []string{testAccount.Hex()}, nil
		}
		return nil, nil
	})

	w, err := DialRPC(context.Background(), srv.URL, 10*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	accountsCh := make(chan []common.Address, 1)
	chainCh := make(chan *big.Int, 1)
	accSub := w.SubscribeAccountsChanged(accountsCh)
	defer accSub.Unsubscribe()
	chainSub := w.SubscribeChainChanged(chainCh)
	defer chainSub.Unsubscribe()

	// Let the baseline poll happen before changing state.
	require.Eventually(t, func() bool { return srv.Calls("eth_accounts") >= 2 }, time.Second, 5*time.Millisecond)
	accountsVersion.Store(1)

	select {
	case id := <-chainCh:
		assert.Equal(t, int64(31337), id.Int64())
	case <-time.After(time.Second):
		t.Fatal("no chain change delivered")
	}
	select {
	case accs := <-accountsCh:
		assert.Empty(t, accs)
	case <-time.After(time.Second):
		t.Fatal("no accounts change delivered")
	}
}

func TestKeyWallet(t *testing.T) {
	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		if method == "eth_chainId" {
			return "0x7a69", nil
		}
		return nil, nil
	})

	cfg := config.DefaultConfig()
	cfg.Wallet.Mode = config.WalletModeKey
	cfg.Network.RPCURL = srv.URL
	env := map[string]string{"STAKEDASH_PRIVATE_KEY": "0x" + testKeyHex}

	p, err := detectKey(context.Background(), cfg, func(k string) string { return env[k] }, nil)
	require.NoError(t, err)
	defer p.Close()

	accounts, err := p.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{testAccount}, accounts)

	err = p.SwitchChain(context.Background(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNetworkSwitchFailed)

	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(1)})
	chainID := big.NewInt(31337)
	signed, err := p.SignerFn(testAccount, chainID)(testAccount, tx)
	require.NoError(t, err)
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, testAccount, sender)

	_, err = detectKey(context.Background(), cfg, func(string) string { return "" }, nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
