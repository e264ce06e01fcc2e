package actions

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"stakedash/pkg/contracts"
	"stakedash/pkg/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	user        = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	stakingAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	icoAddr     = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	depositAddr = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	saleAddr    = common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9")
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	nonce uint64
}

func (r *recorder) record(call string) *types.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	r.nonce++
	return types.NewTx(&types.LegacyTx{Nonce: r.nonce, GasPrice: big.NewInt(1), Gas: 21000, Value: big.NewInt(0)})
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeStaking struct {
	rec       *recorder
	amounts   []*big.Int
	submitErr error
}

func (f *fakeStaking) Address() common.Address { return stakingAddr }

func (f *fakeStaking) PoolInfo(ctx context.Context, pid *big.Int) (contracts.PoolInfo, error) {
	return contracts.PoolInfo{DepositToken: depositAddr, DepositedAmount: new(big.Int), APY: big.NewInt(10), LockDays: big.NewInt(7)}, nil
}

func (f *fakeStaking) Deposit(opts *bind.TransactOpts, pid, amount *big.Int) (*types.Transaction, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.amounts = append(f.amounts, amount)
	return f.rec.record("deposit"), nil
}

func (f *fakeStaking) Withdraw(opts *bind.TransactOpts, pid, amount *big.Int) (*types.Transaction, error) {
	f.amounts = append(f.amounts, amount)
	return f.rec.record("withdraw"), nil
}

func (f *fakeStaking) ClaimReward(opts *bind.TransactOpts, pid *big.Int) (*types.Transaction, error) {
	return f.rec.record("claimReward"), nil
}

func (f *fakeStaking) AddPool(opts *bind.TransactOpts, dep, rew common.Address, apy, lockDays *big.Int) (*types.Transaction, error) {
	f.amounts = append(f.amounts, apy, lockDays)
	return f.rec.record("addPool"), nil
}

func (f *fakeStaking) ModifyPool(opts *bind.TransactOpts, pid, apy *big.Int) (*types.Transaction, error) {
	return f.rec.record("modifyPool"), nil
}

func (f *fakeStaking) Sweep(opts *bind.TransactOpts, token common.Address, amount *big.Int) (*types.Transaction, error) {
	f.amounts = append(f.amounts, amount)
	return f.rec.record("sweep"), nil
}

type fakeICO struct {
	rec    *recorder
	values []*big.Int
	counts []*big.Int
	prices []*big.Int
}

func (f *fakeICO) Address() common.Address { return icoAddr }

func (f *fakeICO) TokenDetails(ctx context.Context) (contracts.TokenDetails, error) {
	price, _ := new(big.Int).SetString("2000000000000000", 10)
	return contracts.TokenDetails{Name: "Sale", Symbol: "SALE", TokenPrice: price, TokenAddress: saleAddr}, nil
}

func (f *fakeICO) BuyToken(opts *bind.TransactOpts, count, value *big.Int) (*types.Transaction, error) {
	f.counts = append(f.counts, count)
	f.values = append(f.values, value)
	return f.rec.record("buyToken"), nil
}

func (f *fakeICO) UpdateToken(opts *bind.TransactOpts, token common.Address) (*types.Transaction, error) {
	return f.rec.record("updateToken"), nil
}

func (f *fakeICO) UpdateTokenSalePrice(opts *bind.TransactOpts, price *big.Int) (*types.Transaction, error) {
	f.prices = append(f.prices, price)
	return f.rec.record("updateTokenSalePrice"), nil
}

func (f *fakeICO) WithdrawAllTokens(opts *bind.TransactOpts) (*types.Transaction, error) {
	return f.rec.record("withdrawAllTokens"), nil
}

type fakeToken struct {
	rec       *recorder
	addr      common.Address
	decimals  uint8
	allowance *big.Int
	balance   *big.Int
	// targets and amounts record the spender or recipient of each write.
	targets []common.Address
	amounts []*big.Int
}

func (f *fakeToken) Address() common.Address { return f.addr }

func (f *fakeToken) Decimals(ctx context.Context) (uint8, error) { return f.decimals, nil }

func (f *fakeToken) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeToken) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	f.rec.record("allowance")
	return f.allowance, nil
}

func (f *fakeToken) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	f.targets = append(f.targets, spender)
	f.amounts = append(f.amounts, amount)
	return f.rec.record("approve"), nil
}

func (f *fakeToken) Transfer(opts *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error) {
	f.targets = append(f.targets, to)
	f.amounts = append(f.amounts, amount)
	return f.rec.record("transfer"), nil
}

type fakeContracts struct {
	rec     *recorder
	staking *fakeStaking
	ico     *fakeICO
	tokens  map[common.Address]*fakeToken
	// waitFn decides the outcome of each receipt wait.
	waitFn func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

func (f *fakeContracts) Staking() StakingWriter                { return f.staking }
func (f *fakeContracts) ICO() ICOWriter                        { return f.ico }
func (f *fakeContracts) Token(addr common.Address) TokenWriter { return f.tokens[addr] }

func (f *fakeContracts) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.rec.record("wait")
	if f.waitFn != nil {
		return f.waitFn(ctx, tx)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type fakeSession struct{ err error }

func (s fakeSession) Signer() (*bind.TransactOpts, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &bind.TransactOpts{From: user}, nil
}

func (s fakeSession) Backend() (wallet.Backend, error) { return nil, s.err }

func newFixture(allowance int64) (*fakeContracts, *recorder) {
	rec := &recorder{}
	return &fakeContracts{
		rec:     rec,
		staking: &fakeStaking{rec: rec},
		ico:     &fakeICO{rec: rec},
		tokens: map[common.Address]*fakeToken{
			depositAddr: {rec: rec, addr: depositAddr, decimals: 6, allowance: big.NewInt(allowance), balance: big.NewInt(0)},
			saleAddr:    {rec: rec, addr: saleAddr, decimals: 18, allowance: big.NewInt(0), balance: big.NewInt(0)},
		},
	}, rec
}

func newDispatcher(c *fakeContracts, results *[]Result) *Dispatcher {
	return New(fakeSession{}, func(wallet.Backend) (Contracts, error) { return c, nil },
		NotifierFunc(func(r Result) { *results = append(*results, r) }),
		Options{ConfirmTimeout: 50 * time.Millisecond, TxLink: func(h string) string { return "https://explorer/tx/" + h }})
}

func TestStake_SkipsApproveWhenAllowanceSuffices(t *testing.T) {
	c, rec := newFixture(2_000_000)
	var results []Result

	r := newDispatcher(c, &results).Stake(context.Background(), 0, "1.5")
	require.Equal(t, StatusSuccess, r.Status, r.Message)
	assert.Equal(t, []string{"allowance", "deposit", "wait"}, rec.Calls())
	require.Len(t, c.staking.amounts, 1)
	assert.Equal(t, int64(1_500_000), c.staking.amounts[0].Int64())
	assert.Contains(t, r.Link, "https://explorer/tx/0x")
	require.Len(t, results, 1)
	assert.Equal(t, r, results[0])
}

func TestStake_ApprovesThenDeposits(t *testing.T) {
	c, rec := newFixture(100)
	var results []Result

	r := newDispatcher(c, &results).Stake(context.Background(), 0, "1.5")
	require.Equal(t, StatusSuccess, r.Status, r.Message)
	assert.Equal(t, []string{"allowance", "approve", "wait", "deposit", "wait"}, rec.Calls())
}

func TestStake_ApprovalRevertedStopsDeposit(t *testing.T) {
	c, rec := newFixture(0)
	c.waitFn = func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusFailed}, contracts.ErrTransactionFailed
	}
	var results []Result

	r := newDispatcher(c, &results).Stake(context.Background(), 0, "1")
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, contracts.ErrTransactionFailed)
	assert.NotContains(t, rec.Calls(), "deposit")
	require.Len(t, results, 1)
}

func TestStake_TimeoutIsPending(t *testing.T) {
	c, _ := newFixture(10_000_000)
	c.waitFn = func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	var results []Result

	r := newDispatcher(c, &results).Stake(context.Background(), 0, "2")
	assert.Equal(t, StatusPending, r.Status)
	assert.NotEmpty(t, r.TxHash)
	assert.NoError(t, r.Err)
	assert.Contains(t, r.Message, "pending")
}

func TestStake_InvalidAmount(t *testing.T) {
	c, rec := newFixture(0)
	var results []Result
	d := newDispatcher(c, &results)

	for _, amount := range []string{"", "0", "-1", "abc", "0.0000001"} {
		r := d.Stake(context.Background(), 0, amount)
		assert.Equal(t, StatusFailed, r.Status, "amount %q", amount)
		assert.ErrorIs(t, r.Err, ErrInvalidInput, "amount %q", amount)
	}
	assert.NotContains(t, rec.Calls(), "approve")
	assert.Len(t, results, 5)
}

func TestStake_SubmitFailureCarriesRevertReason(t *testing.T) {
	c, _ := newFixture(10_000_000)
	c.staking.submitErr = &contracts.CallError{Contract: "staking", Method: "deposit", Reason: "Pool is locked", Err: errors.New("execution reverted")}
	var results []Result

	r := newDispatcher(c, &results).Stake(context.Background(), 0, "1")
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "Pool is locked", r.Message)
	assert.ErrorIs(t, r.Err, contracts.ErrTransactionFailed)
}

func TestNotConnected(t *testing.T) {
	c, rec := newFixture(0)
	var results []Result
	d := New(fakeSession{err: errors.New("wallet not connected")}, func(wallet.Backend) (Contracts, error) { return c, nil },
		NotifierFunc(func(r Result) { results = append(results, r) }), Options{})

	r := d.Claim(context.Background(), 0)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Empty(t, rec.Calls())
	assert.Len(t, results, 1)
}

func TestBuyTokens(t *testing.T) {
	c, rec := newFixture(0)
	var results []Result
	d := newDispatcher(c, &results)

	r := d.BuyTokens(context.Background(), "3")
	require.Equal(t, StatusSuccess, r.Status, r.Message)
	require.Len(t, c.ico.counts, 1)
	assert.Equal(t, int64(3), c.ico.counts[0].Int64())
	assert.Equal(t, "6000000000000000", c.ico.values[0].String())

	r = d.BuyTokens(context.Background(), "1.5")
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, ErrInvalidInput)
	assert.Equal(t, 1, countOf(rec.Calls(), "buyToken"))
}

func TestAdminActions(t *testing.T) {
	c, rec := newFixture(0)
	var results []Result
	d := newDispatcher(c, &results)
	ctx := context.Background()

	assert.Equal(t, StatusSuccess, d.AddPool(ctx, depositAddr.Hex(), saleAddr.Hex(), "12", "30").Status)
	assert.Equal(t, StatusSuccess, d.ModifyPool(ctx, 0, "15").Status)
	assert.Equal(t, StatusSuccess, d.Sweep(ctx, depositAddr.Hex(), "10").Status)
	assert.Equal(t, StatusSuccess, d.UpdateToken(ctx, saleAddr.Hex()).Status)
	assert.Equal(t, StatusSuccess, d.UpdateTokenPrice(ctx, "0.002").Status)
	assert.Equal(t, StatusSuccess, d.Unstake(ctx, 0, "0.5").Status)

	assert.Equal(t, "2000000000000000", c.ico.prices[0].String())
	assert.Equal(t, int64(10_000_000), c.staking.amounts[2].Int64(), "sweep amount uses token decimals")
	assert.Equal(t, int64(500_000), c.staking.amounts[3].Int64())

	assert.Equal(t, StatusFailed, d.AddPool(ctx, "nope", saleAddr.Hex(), "12", "30").Status)
	assert.Equal(t, StatusFailed, d.ModifyPool(ctx, -1, "15").Status)
	assert.Equal(t, StatusFailed, d.ModifyPool(ctx, 0, "1.5").Status)
	assert.Equal(t, 1, countOf(rec.Calls(), "addPool"))
}

func TestWithdrawAllTokens_RefusesWhenEmpty(t *testing.T) {
	c, rec := newFixture(0)
	var results []Result
	d := newDispatcher(c, &results)

	r := d.WithdrawAllTokens(context.Background())
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, ErrNothingToClaim)
	assert.NotContains(t, rec.Calls(), "withdrawAllTokens")

	c.tokens[saleAddr].balance = big.NewInt(5)
	r = d.WithdrawAllTokens(context.Background())
	assert.Equal(t, StatusSuccess, r.Status)
	assert.Contains(t, rec.Calls(), "withdrawAllTokens")
}

func TestTransfer(t *testing.T) {
	c, rec := newFixture(0)
	var results []Result
	d := newDispatcher(c, &results)
	to := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	r := d.Transfer(context.Background(), depositAddr.Hex(), to.Hex(), "12.25")
	require.Equal(t, StatusSuccess, r.Status, r.Message)
	assert.Equal(t, "transfer", r.Action)
	assert.Equal(t, []string{"transfer", "wait"}, rec.Calls())
	tok := c.tokens[depositAddr]
	assert.Equal(t, []common.Address{to}, tok.targets)
	assert.Equal(t, int64(12_250_000), tok.amounts[0].Int64(), "amount uses token decimals")

	for _, tc := range []struct{ token, to, amount string }{
		{"0x123", to.Hex(), "1"},
		{depositAddr.Hex(), "bob", "1"},
		{depositAddr.Hex(), to.Hex(), "0"},
		{depositAddr.Hex(), to.Hex(), "0.0000001"},
	} {
		r := d.Transfer(context.Background(), tc.token, tc.to, tc.amount)
		assert.Equal(t, StatusFailed, r.Status, "%+v", tc)
		assert.ErrorIs(t, r.Err, ErrInvalidInput, "%+v", tc)
	}
	assert.Equal(t, 1, countOf(rec.Calls(), "transfer"))
	assert.Len(t, results, 5)
}

func TestApprove(t *testing.T) {
	c, rec := newFixture(0)
	var results []Result
	d := newDispatcher(c, &results)

	r := d.Approve(context.Background(), saleAddr.Hex(), stakingAddr.Hex(), "1000")
	require.Equal(t, StatusSuccess, r.Status, r.Message)
	assert.Equal(t, "approve", r.Action)
	assert.Equal(t, []string{"approve", "wait"}, rec.Calls())
	tok := c.tokens[saleAddr]
	assert.Equal(t, []common.Address{stakingAddr}, tok.targets)
	assert.Equal(t, "1000000000000000000000", tok.amounts[0].String())

	r = d.Approve(context.Background(), saleAddr.Hex(), "", "1")
	assert.ErrorIs(t, r.Err, ErrInvalidInput)
	assert.Equal(t, 1, countOf(rec.Calls(), "approve"))
}

func countOf(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
