// Package actions submits user and admin transactions, waits a bounded time for
// their receipts and reports the outcome through a Notifier.
package actions

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"stakedash/pkg/contracts"
	"stakedash/pkg/utils"
	"stakedash/pkg/wallet"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNothingToClaim = errors.New("sale contract holds no tokens")
)

// DefaultConfirmTimeout bounds receipt waits when none is configured.
const DefaultConfirmTimeout = 2 * time.Minute

// Session supplies the connected account's signer and backend.
type Session interface {
	Signer() (*bind.TransactOpts, error)
	Backend() (wallet.Backend, error)
}

// Options configures a Dispatcher.
type Options struct {
	ConfirmTimeout time.Duration
	// TxLink renders an explorer link for a transaction hash.
	TxLink func(hash string) string
	Logger *log.Logger
}

// Dispatcher runs actions one call at a time. Calls may run concurrently.
type Dispatcher struct {
	session  Session
	bind     Binder
	notifier Notifier
	timeout  time.Duration
	txLink   func(string) string
	log      *log.Logger
}

func New(s Session, binder Binder, n Notifier, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	if n == nil {
		n = NotifierFunc(func(Result) {})
	}
	return &Dispatcher{
		session:  s,
		bind:     binder,
		notifier: n,
		timeout:  timeout,
		txLink:   opts.TxLink,
		log:      logger.With("component", "actions"),
	}
}

// call is the per-action state: bound contracts and a transactor whose
// context is the action's.
type call struct {
	name string
	c    Contracts
	opts *bind.TransactOpts
}

func (d *Dispatcher) prepare(ctx context.Context, name string) (*call, error) {
	opts, err := d.session.Signer()
	if err != nil {
		return nil, err
	}
	backend, err := d.session.Backend()
	if err != nil {
		return nil, err
	}
	c, err := d.bind(backend)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return &call{name: name, c: c, opts: opts}, nil
}

// fail reports a failure that happened before or while submitting.
func (d *Dispatcher) fail(name string, err error) Result {
	msg := contracts.Describe(err)
	if !errors.Is(err, contracts.ErrTransactionFailed) && !errors.Is(err, ErrInvalidInput) {
		err = fmt.Errorf("%w: %w", contracts.ErrTransactionFailed, err)
	}
	r := Result{Action: name, Status: StatusFailed, Message: msg, Err: err}
	d.log.Warn("action failed", "action", name, "kind", wallet.KindOf(err), "err", err)
	d.notifier.Notify(r)
	return r
}

// wait confirms tx within the configured bound. It reports without notifying
// so callers can chain further transactions.
func (d *Dispatcher) wait(ctx context.Context, cl *call, tx *types.Transaction) Result {
	r := Result{Action: cl.name, TxHash: tx.Hash().Hex()}
	if d.txLink != nil {
		r.Link = d.txLink(r.TxHash)
	}
	d.log.Info("transaction sent", "action", cl.name, "tx", r.TxHash)

	wctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := cl.c.WaitMined(wctx, tx)
	switch {
	case err == nil:
		r.Status = StatusSuccess
		r.Message = "transaction confirmed"
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		r.Status = StatusPending
		r.Message = "transaction still pending"
	case errors.Is(err, contracts.ErrTransactionFailed):
		r.Status = StatusFailed
		r.Message = "transaction reverted"
		r.Err = err
	default:
		r.Status = StatusFailed
		r.Message = contracts.Describe(err)
		r.Err = fmt.Errorf("%w: %w", contracts.ErrTransactionFailed, err)
	}
	return r
}

// finish submits the final transaction of an action and reports its outcome.
func (d *Dispatcher) finish(ctx context.Context, cl *call, tx *types.Transaction, err error) Result {
	if err != nil {
		return d.fail(cl.name, err)
	}
	r := d.wait(ctx, cl, tx)
	d.log.Info("action finished", "action", cl.name, "status", r.Status, "tx", r.TxHash)
	d.notifier.Notify(r)
	return r
}

func poolID(pool int) (*big.Int, error) {
	if pool < 0 {
		return nil, fmt.Errorf("%w: pool id %d", ErrInvalidInput, pool)
	}
	return big.NewInt(int64(pool)), nil
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", ErrInvalidInput, field, s)
	}
	return common.HexToAddress(s), nil
}

func parseUint(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s %q is not a whole number", ErrInvalidInput, field, s)
	}
	return v, nil
}

func parsePositive(field, s string, decimals uint8) (*big.Int, error) {
	v, err := utils.ParseUnits(s, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, err)
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidInput, field)
	}
	return v, nil
}

// depositToken resolves a pool's deposit token and its decimals.
func depositToken(ctx context.Context, cl *call, pid *big.Int) (TokenWriter, uint8, error) {
	info, err := cl.c.Staking().PoolInfo(ctx, pid)
	if err != nil {
		return nil, 0, err
	}
	token := cl.c.Token(info.DepositToken)
	dec, err := token.Decimals(ctx)
	if err != nil {
		return nil, 0, err
	}
	return token, dec, nil
}

// Stake deposits amount of the pool's deposit token, approving the staking
// contract first when the current allowance does not cover it.
func (d *Dispatcher) Stake(ctx context.Context, pool int, amount string) Result {
	const name = "stake"
	pid, err := poolID(pool)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	token, dec, err := depositToken(ctx, cl, pid)
	if err != nil {
		return d.fail(name, err)
	}
	amt, err := parsePositive("amount", amount, dec)
	if err != nil {
		return d.fail(name, err)
	}

	spender := cl.c.Staking().Address()
	allowance, err := token.Allowance(ctx, cl.opts.From, spender)
	if err != nil {
		return d.fail(name, err)
	}
	if allowance.Cmp(amt) < 0 {
		d.log.Info("approving deposit token", "token", token.Address().Hex(), "amount", amt, "allowance", allowance)
		tx, err := token.Approve(cl.opts, spender, amt)
		if err != nil {
			return d.fail(name, err)
		}
		approval := d.wait(ctx, cl, tx)
		if approval.Status != StatusSuccess {
			approval.Message = "approval " + approval.Message
			d.notifier.Notify(approval)
			return approval
		}
	}

	tx, err := cl.c.Staking().Deposit(cl.opts, pid, amt)
	return d.finish(ctx, cl, tx, err)
}

// Unstake withdraws amount of the pool's deposit token.
func (d *Dispatcher) Unstake(ctx context.Context, pool int, amount string) Result {
	const name = "unstake"
	pid, err := poolID(pool)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	_, dec, err := depositToken(ctx, cl, pid)
	if err != nil {
		return d.fail(name, err)
	}
	amt, err := parsePositive("amount", amount, dec)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := cl.c.Staking().Withdraw(cl.opts, pid, amt)
	return d.finish(ctx, cl, tx, err)
}

// Claim collects the pending reward of a pool.
func (d *Dispatcher) Claim(ctx context.Context, pool int) Result {
	const name = "claim"
	pid, err := poolID(pool)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := cl.c.Staking().ClaimReward(cl.opts, pid)
	return d.finish(ctx, cl, tx, err)
}

// BuyTokens purchases a whole number of sale tokens, paying price times count.
func (d *Dispatcher) BuyTokens(ctx context.Context, amount string) Result {
	const name = "buy"
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	details, err := cl.c.ICO().TokenDetails(ctx)
	if err != nil {
		return d.fail(name, err)
	}
	dec, err := cl.c.Token(details.TokenAddress).Decimals(ctx)
	if err != nil {
		return d.fail(name, err)
	}
	base, err := parsePositive("amount", amount, dec)
	if err != nil {
		return d.fail(name, err)
	}
	count, err := utils.WholeUnits(base, dec)
	if err != nil {
		return d.fail(name, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	cost := new(big.Int).Mul(details.TokenPrice, count)
	d.log.Info("buying tokens", "count", count, "cost_wei", cost)

	tx, err := cl.c.ICO().BuyToken(cl.opts, count, cost)
	return d.finish(ctx, cl, tx, err)
}

// tokenAmount binds an arbitrary token and scales amount by its decimals.
func tokenAmount(ctx context.Context, cl *call, addr common.Address, amount string) (TokenWriter, *big.Int, error) {
	token := cl.c.Token(addr)
	dec, err := token.Decimals(ctx)
	if err != nil {
		return nil, nil, err
	}
	amt, err := parsePositive("amount", amount, dec)
	if err != nil {
		return nil, nil, err
	}
	return token, amt, nil
}

// Transfer sends amount of any ERC20 token from the connected account.
func (d *Dispatcher) Transfer(ctx context.Context, token, to, amount string) Result {
	const name = "transfer"
	addr, err := parseAddress("token", token)
	if err != nil {
		return d.fail(name, err)
	}
	recipient, err := parseAddress("recipient", to)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	t, amt, err := tokenAmount(ctx, cl, addr, amount)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := t.Transfer(cl.opts, recipient, amt)
	return d.finish(ctx, cl, tx, err)
}

// Approve sets spender's allowance on any ERC20 token to amount.
func (d *Dispatcher) Approve(ctx context.Context, token, spender, amount string) Result {
	const name = "approve"
	addr, err := parseAddress("token", token)
	if err != nil {
		return d.fail(name, err)
	}
	sp, err := parseAddress("spender", spender)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	t, amt, err := tokenAmount(ctx, cl, addr, amount)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := t.Approve(cl.opts, sp, amt)
	return d.finish(ctx, cl, tx, err)
}

// AddPool creates a staking pool.
func (d *Dispatcher) AddPool(ctx context.Context, depositToken, rewardToken, apy, lockDays string) Result {
	const name = "add_pool"
	dep, err := parseAddress("deposit token", depositToken)
	if err != nil {
		return d.fail(name, err)
	}
	rew, err := parseAddress("reward token", rewardToken)
	if err != nil {
		return d.fail(name, err)
	}
	apyV, err := parseUint("apy", apy)
	if err != nil {
		return d.fail(name, err)
	}
	lock, err := parseUint("lock days", lockDays)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := cl.c.Staking().AddPool(cl.opts, dep, rew, apyV, lock)
	return d.finish(ctx, cl, tx, err)
}

// ModifyPool changes a pool's APY.
func (d *Dispatcher) ModifyPool(ctx context.Context, pool int, apy string) Result {
	const name = "modify_pool"
	pid, err := poolID(pool)
	if err != nil {
		return d.fail(name, err)
	}
	apyV, err := parseUint("apy", apy)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := cl.c.Staking().ModifyPool(cl.opts, pid, apyV)
	return d.finish(ctx, cl, tx, err)
}

// Sweep recovers amount of token held by the staking contract.
func (d *Dispatcher) Sweep(ctx context.Context, token, amount string) Result {
	const name = "sweep"
	addr, err := parseAddress("token", token)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	dec, err := cl.c.Token(addr).Decimals(ctx)
	if err != nil {
		return d.fail(name, err)
	}
	amt, err := parsePositive("amount", amount, dec)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := cl.c.Staking().Sweep(cl.opts, addr, amt)
	return d.finish(ctx, cl, tx, err)
}

// UpdateToken points the sale at a different token.
func (d *Dispatcher) UpdateToken(ctx context.Context, token string) Result {
	const name = "update_token"
	addr, err := parseAddress("token", token)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := cl.c.ICO().UpdateToken(cl.opts, addr)
	return d.finish(ctx, cl, tx, err)
}

// UpdateTokenPrice sets the sale price, given in ether per whole token.
func (d *Dispatcher) UpdateTokenPrice(ctx context.Context, priceEth string) Result {
	const name = "update_price"
	price, err := parsePositive("price", priceEth, 18)
	if err != nil {
		return d.fail(name, err)
	}
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	tx, err := cl.c.ICO().UpdateTokenSalePrice(cl.opts, price)
	return d.finish(ctx, cl, tx, err)
}

// WithdrawAllTokens returns the unsold tokens to the owner. It refuses when
// the sale contract holds none.
func (d *Dispatcher) WithdrawAllTokens(ctx context.Context) Result {
	const name = "withdraw_tokens"
	cl, err := d.prepare(ctx, name)
	if err != nil {
		return d.fail(name, err)
	}
	sale := cl.c.ICO()
	details, err := sale.TokenDetails(ctx)
	if err != nil {
		return d.fail(name, err)
	}
	held, err := cl.c.Token(details.TokenAddress).BalanceOf(ctx, sale.Address())
	if err != nil {
		return d.fail(name, err)
	}
	if held.Sign() == 0 {
		return d.fail(name, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNothingToClaim))
	}
	tx, err := sale.WithdrawAllTokens(cl.opts)
	return d.finish(ctx, cl, tx, err)
}
