// Package fetch assembles the dashboard's display data from contract reads.
// Read failures never surface as errors: they are logged and replaced by safe
// defaults so rendering always has something to show.
package fetch

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"stakedash/pkg/models"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// Token metadata used when a token cannot be read.
const (
	DefaultTokenName     = "Unknown"
	DefaultTokenSymbol   = "UNK"
	DefaultTokenDecimals = 18
)

// maxPools bounds the pool scan against a misbehaving poolCount.
const maxPools = 512

// Options configures a Fetcher.
type Options struct {
	DepositToken common.Address
	RewardToken  common.Address
	ExplorerURL  string
	// FromBlock is where the notification log scan starts.
	FromBlock uint64
	Logger    *log.Logger
}

// Fetcher reads display aggregates. It is safe for concurrent use.
type Fetcher struct {
	source SourceFunc
	opts   Options
	log    *log.Logger

	mu   sync.RWMutex
	meta map[common.Address]tokenMeta
}

type tokenMeta struct {
	name     string
	symbol   string
	decimals uint8
}

func New(source SourceFunc, opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		source: source,
		opts:   opts,
		log:    logger.With("component", "fetch"),
		meta:   make(map[common.Address]tokenMeta),
	}
}

func (f *Fetcher) src() (Source, bool) {
	s, err := f.source()
	if err != nil {
		f.log.Warn("contracts unavailable", "err", err)
		return nil, false
	}
	return s, true
}

func zero() *big.Int { return new(big.Int) }

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return zero()
	}
	return v
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() <= 0 || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

func hasAccount(a common.Address) bool { return a != (common.Address{}) }

func defaultToken() models.TokenInfo {
	return models.TokenInfo{
		Name:        DefaultTokenName,
		Symbol:      DefaultTokenSymbol,
		Decimals:    DefaultTokenDecimals,
		TotalSupply: zero(),
		Balance:     zero(),
		Contract:    zero(),
	}
}

// tokenInfo reads metadata for addr, the account's balance and, when holder is
// set, the holder's balance.
func (f *Fetcher) tokenInfo(ctx context.Context, src Source, addr, account, holder common.Address) models.TokenInfo {
	info := defaultToken()
	if addr == (common.Address{}) {
		return info
	}
	info.Address = addr.Hex()

	token := src.Token(addr)
	meta := f.tokenMeta(ctx, token)
	info.Name, info.Symbol, info.Decimals = meta.name, meta.symbol, meta.decimals

	if supply, err := token.TotalSupply(ctx); err != nil {
		f.log.Debug("totalSupply failed", "token", addr.Hex(), "err", err)
	} else {
		info.TotalSupply = supply
	}
	if hasAccount(account) {
		if bal, err := token.BalanceOf(ctx, account); err != nil {
			f.log.Warn("balanceOf failed", "token", addr.Hex(), "account", account.Hex(), "err", err)
		} else {
			info.Balance = bal
		}
	}
	if hasAccount(holder) {
		if bal, err := token.BalanceOf(ctx, holder); err != nil {
			f.log.Warn("balanceOf failed", "token", addr.Hex(), "holder", holder.Hex(), "err", err)
		} else {
			info.Contract = bal
		}
	}
	return info
}

// tokenMeta returns cached name, symbol and decimals, reading them on first use.
// Only complete reads are cached.
func (f *Fetcher) tokenMeta(ctx context.Context, token TokenReader) tokenMeta {
	addr := token.Address()
	f.mu.RLock()
	m, ok := f.meta[addr]
	f.mu.RUnlock()
	if ok {
		return m
	}

	m = tokenMeta{name: DefaultTokenName, symbol: DefaultTokenSymbol, decimals: DefaultTokenDecimals}
	complete := true
	if name, err := token.Name(ctx); err != nil {
		f.log.Warn("token name failed", "token", addr.Hex(), "err", err)
		complete = false
	} else if name != "" {
		m.name = name
	}
	if sym, err := token.Symbol(ctx); err != nil {
		f.log.Warn("token symbol failed", "token", addr.Hex(), "err", err)
		complete = false
	} else if sym != "" {
		m.symbol = sym
	}
	if dec, err := token.Decimals(ctx); err != nil {
		f.log.Warn("token decimals failed", "token", addr.Hex(), "err", err)
		complete = false
	} else {
		m.decimals = dec
	}

	if complete {
		f.mu.Lock()
		f.meta[addr] = m
		f.mu.Unlock()
	}
	return m
}

// Decimals returns the decimals of token, defaulting to 18.
func (f *Fetcher) Decimals(ctx context.Context, token common.Address) uint8 {
	src, ok := f.src()
	if !ok {
		return DefaultTokenDecimals
	}
	return f.tokenMeta(ctx, src.Token(token)).decimals
}

// Pools lists every pool. Without an account the user fields are zero.
func (f *Fetcher) Pools(ctx context.Context, account common.Address) []models.Pool {
	src, ok := f.src()
	if !ok {
		return []models.Pool{}
	}
	return f.pools(ctx, src, account)
}

func (f *Fetcher) pools(ctx context.Context, src Source, account common.Address) []models.Pool {
	staking := src.Staking()
	if staking.Address() == (common.Address{}) {
		return []models.Pool{}
	}
	count, err := staking.PoolCount(ctx)
	if err != nil {
		f.log.Warn("poolCount failed", "err", err)
		return []models.Pool{}
	}
	n := int(count.Int64())
	if !count.IsInt64() || n > maxPools {
		f.log.Warn("pool count out of range, truncating", "count", count, "max", maxPools)
		n = maxPools
	}

	pools := make([]models.Pool, 0, n)
	for i := 0; i < n; i++ {
		pid := big.NewInt(int64(i))
		info, err := staking.PoolInfo(ctx, pid)
		if err != nil {
			f.log.Warn("poolInfo failed", "pool", i, "err", err)
			continue
		}
		p := models.Pool{
			ID:              i,
			DepositToken:    f.tokenInfo(ctx, src, info.DepositToken, account, common.Address{}),
			RewardToken:     f.tokenInfo(ctx, src, info.RewardToken, account, common.Address{}),
			DepositedAmount: orZero(info.DepositedAmount),
			APY:             orZero(info.APY),
			LockDays:        orZero(info.LockDays),
			UserStaked:      zero(),
			PendingReward:   zero(),
		}
		if hasAccount(account) {
			if user, err := staking.UserInfo(ctx, pid, account); err != nil {
				f.log.Warn("userInfo failed", "pool", i, "err", err)
			} else {
				p.UserStaked = orZero(user.Amount)
				p.LockUntil = unixTime(user.LockUntil)
				p.LastRewardAt = unixTime(user.LastRewardAt)
			}
			if reward, err := staking.PendingReward(ctx, pid, account); err != nil {
				f.log.Warn("pendingReward failed", "pool", i, "err", err)
			} else {
				p.PendingReward = orZero(reward)
			}
		}
		pools = append(pools, p)
	}
	return pools
}

// ICO reads the token sale state.
func (f *Fetcher) ICO(ctx context.Context, account common.Address) models.ICOInfo {
	src, ok := f.src()
	if !ok {
		return emptyICO()
	}
	return f.ico(ctx, src, account)
}

func emptyICO() models.ICOInfo {
	return models.ICOInfo{
		Token:       defaultToken(),
		Price:       zero(),
		Sold:        zero(),
		Supply:      zero(),
		Available:   zero(),
		UserBalance: zero(),
	}
}

func (f *Fetcher) ico(ctx context.Context, src Source, account common.Address) models.ICOInfo {
	sale := src.ICO()
	out := emptyICO()
	if sale.Address() == (common.Address{}) {
		return out
	}
	out.Address = sale.Address().Hex()

	details, err := sale.TokenDetails(ctx)
	if err != nil {
		f.log.Warn("getTokenDetails failed", "err", err)
	} else {
		out.Price = orZero(details.TokenPrice)
		out.Supply = orZero(details.Supply)
		out.Available = orZero(details.Balance)
		out.Token = f.tokenInfo(ctx, src, details.TokenAddress, account, common.Address{})
		if details.Name != "" && out.Token.Name == DefaultTokenName {
			out.Token.Name = details.Name
		}
		if details.Symbol != "" && out.Token.Symbol == DefaultTokenSymbol {
			out.Token.Symbol = details.Symbol
		}
		out.UserBalance = out.Token.Balance
	}
	if sold, err := sale.SoldTokens(ctx); err != nil {
		f.log.Warn("soldTokens failed", "err", err)
	} else {
		out.Sold = orZero(sold)
	}
	if owner, err := sale.Owner(ctx); err != nil {
		f.log.Warn("ico owner failed", "err", err)
	} else {
		out.Owner = owner.Hex()
	}
	return out
}

// Balances reads the configured deposit and reward tokens, including what the
// staking contract holds of each.
func (f *Fetcher) Balances(ctx context.Context, account common.Address) (deposit, reward models.TokenInfo) {
	src, ok := f.src()
	if !ok {
		return defaultToken(), defaultToken()
	}
	return f.balances(ctx, src, account)
}

func (f *Fetcher) balances(ctx context.Context, src Source, account common.Address) (deposit, reward models.TokenInfo) {
	holder := src.Staking().Address()
	deposit = f.tokenInfo(ctx, src, f.opts.DepositToken, account, holder)
	reward = f.tokenInfo(ctx, src, f.opts.RewardToken, account, holder)
	return deposit, reward
}

// Notifications returns staking activity, newest first.
func (f *Fetcher) Notifications(ctx context.Context) []models.Notification {
	src, ok := f.src()
	if !ok {
		return []models.Notification{}
	}
	return f.notifications(ctx, src)
}

func (f *Fetcher) notifications(ctx context.Context, src Source) []models.Notification {
	if src.Staking().Address() == (common.Address{}) {
		return []models.Notification{}
	}
	events, err := src.Staking().Notifications(ctx, f.opts.FromBlock)
	if err != nil {
		f.log.Warn("notification query failed", "err", err)
		return []models.Notification{}
	}
	out := make([]models.Notification, 0, len(events))
	for _, ev := range events {
		n := models.Notification{
			Amount:    orZero(ev.Amount),
			User:      ev.User.Hex(),
			TypeOf:    ev.TypeOf,
			Timestamp: unixTime(ev.Timestamp),
			TxHash:    ev.TxHash.Hex(),
			Block:     ev.BlockNumber,
			Link:      f.TxLink(ev.TxHash.Hex()),
		}
		if ev.PoolID != nil && ev.PoolID.IsInt64() {
			n.PoolID = int(ev.PoolID.Int64())
		}
		out = append(out, n)
	}
	return out
}

// TxLink returns the block explorer URL for a transaction, or "" without an
// explorer.
func (f *Fetcher) TxLink(hash string) string {
	if f.opts.ExplorerURL == "" || hash == "" {
		return ""
	}
	return strings.TrimRight(f.opts.ExplorerURL, "/") + "/tx/" + hash
}

// Dashboard reads everything the views need. Sections are read concurrently.
func (f *Fetcher) Dashboard(ctx context.Context, account common.Address) models.Dashboard {
	d := models.Dashboard{
		Pools:          []models.Pool{},
		ICO:            emptyICO(),
		Notifications:  []models.Notification{},
		TotalDeposited: zero(),
		SpareBalance:   zero(),
		UpdatedAt:      time.Now(),
	}
	if hasAccount(account) {
		d.Account = strings.ToLower(account.Hex())
	}
	src, ok := f.src()
	if !ok {
		d.DepositToken, d.RewardToken = defaultToken(), defaultToken()
		return d
	}
	d.StakingAddress = src.Staking().Address().Hex()

	var stakingOwner common.Address
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Pools = f.pools(gctx, src, account)
		return nil
	})
	g.Go(func() error {
		d.ICO = f.ico(gctx, src, account)
		return nil
	})
	g.Go(func() error {
		d.DepositToken, d.RewardToken = f.balances(gctx, src, account)
		return nil
	})
	g.Go(func() error {
		d.Notifications = f.notifications(gctx, src)
		return nil
	})
	g.Go(func() error {
		if src.Staking().Address() == (common.Address{}) {
			return nil
		}
		owner, err := src.Staking().Owner(gctx)
		if err != nil {
			f.log.Warn("staking owner failed", "err", err)
			return nil
		}
		stakingOwner = owner
		return nil
	})
	_ = g.Wait()

	if stakingOwner != (common.Address{}) {
		d.StakingOwner = stakingOwner.Hex()
	}
	if hasAccount(account) {
		d.IsStakingOwner = stakingOwner == account
		d.IsICOOwner = d.ICO.Owner != "" && common.HexToAddress(d.ICO.Owner) == account
	}

	for _, p := range d.Pools {
		if f.opts.DepositToken != (common.Address{}) && !strings.EqualFold(p.DepositToken.Address, f.opts.DepositToken.Hex()) {
			continue
		}
		d.TotalDeposited.Add(d.TotalDeposited, p.DepositedAmount)
	}
	if spare := new(big.Int).Sub(d.DepositToken.Contract, d.TotalDeposited); spare.Sign() > 0 {
		d.SpareBalance = spare
	}
	return d
}
