package models

import (
	"math/big"
	"time"
)

// TokenInfo is display metadata for an ERC20 token plus balances relevant to
// the dashboard.
type TokenInfo struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply *big.Int `json:"total_supply"`
	Balance     *big.Int `json:"balance"`          // held by the connected account
	Contract    *big.Int `json:"contract_balance"` // held by the staking contract
}

// Pool is one staking pool with the connected account's position in it.
type Pool struct {
	ID              int       `json:"id"`
	DepositToken    TokenInfo `json:"deposit_token"`
	RewardToken     TokenInfo `json:"reward_token"`
	DepositedAmount *big.Int  `json:"deposited_amount"`
	APY             *big.Int  `json:"apy"`
	LockDays        *big.Int  `json:"lock_days"`
	UserStaked      *big.Int  `json:"user_staked"`
	PendingReward   *big.Int  `json:"pending_reward"`
	LockUntil       time.Time `json:"lock_until,omitempty"`
	LastRewardAt    time.Time `json:"last_reward_at,omitempty"`
}

// ICOInfo is the token sale state. Price is wei per whole token.
type ICOInfo struct {
	Address     string    `json:"address"`
	Owner       string    `json:"owner,omitempty"`
	Token       TokenInfo `json:"token"`
	Price       *big.Int  `json:"price"`
	Sold        *big.Int  `json:"sold"`
	Supply      *big.Int  `json:"supply"`
	Available   *big.Int  `json:"available"` // tokens held by the sale contract
	UserBalance *big.Int  `json:"user_balance"`
}

// Notification is a staking activity record.
type Notification struct {
	PoolID    int       `json:"pool_id"`
	Amount    *big.Int  `json:"amount"`
	User      string    `json:"user"`
	TypeOf    string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TxHash    string    `json:"tx_hash"`
	Block     uint64    `json:"block"`
	Link      string    `json:"link,omitempty"`
}

// Dashboard is everything the views render.
type Dashboard struct {
	Account        string         `json:"account,omitempty"`
	StakingAddress string         `json:"staking_address"`
	StakingOwner   string         `json:"staking_owner,omitempty"`
	IsStakingOwner bool           `json:"is_staking_owner"`
	IsICOOwner     bool           `json:"is_ico_owner"`
	Pools          []Pool         `json:"pools"`
	ICO            ICOInfo        `json:"ico"`
	DepositToken   TokenInfo      `json:"deposit_token"`
	RewardToken    TokenInfo      `json:"reward_token"`
	Notifications  []Notification `json:"notifications"`
	TotalDeposited *big.Int       `json:"total_deposited"`
	// SpareBalance is the deposit token held by the staking contract beyond
	// what users have deposited.
	SpareBalance *big.Int  `json:"spare_balance"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DepositPoint is a timestamped total-deposited sample for charting.
type DepositPoint struct {
	Timestamp time.Time
	Value     float64
}

// ContractCheck is the check-mode result for one configured contract.
type ContractCheck struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Status  string `json:"status"` // "ok", "no_code", "unset" or "error"
	Error   string `json:"error,omitempty"`
}

// CheckReport holds the results of the configuration check.
type CheckReport struct {
	ConfigPath      string          `json:"config_path"`
	ValidStructure  bool            `json:"valid_structure"`
	StructureErrors []string        `json:"structure_errors,omitempty"`
	RPCURL          string          `json:"rpc_url"`
	RPCStatus       string          `json:"rpc_status"` // "ok" or "error"
	RPCError        string          `json:"rpc_error,omitempty"`
	LatencyMillis   int64           `json:"latency_ms,omitempty"`
	ConfigChainID   int64           `json:"config_chain_id"`
	ObservedChainID int64           `json:"observed_chain_id,omitempty"`
	Inconsistent    bool            `json:"inconsistent"`
	ChainIDUpdated  bool            `json:"chain_id_updated"`
	Contracts       []ContractCheck `json:"contracts,omitempty"`
	ConfigUpdated   bool            `json:"config_updated"`
	SaveError       string          `json:"save_error,omitempty"`
	DryRun          bool            `json:"dry_run"`
}
