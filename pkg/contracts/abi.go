package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const stakingABIJSON = `[
	{"type":"function","name":"poolCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"poolInfo","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
		{"name":"depositToken","type":"address"},
		{"name":"rewardToken","type":"address"},
		{"name":"depositedAmount","type":"uint256"},
		{"name":"apy","type":"uint256"},
		{"name":"lockDays","type":"uint256"}]},
	{"type":"function","name":"userInfo","stateMutability":"view","inputs":[{"name":"","type":"uint256"},{"name":"","type":"address"}],"outputs":[
		{"name":"amount","type":"uint256"},
		{"name":"lastRewardAt","type":"uint256"},
		{"name":"lockUntil","type":"uint256"}]},
	{"type":"function","name":"pendingReward","stateMutability":"view","inputs":[{"name":"_pid","type":"uint256"},{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"_pid","type":"uint256"},{"name":"_amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"_pid","type":"uint256"},{"name":"_amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimReward","stateMutability":"nonpayable","inputs":[{"name":"_pid","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"addPool","stateMutability":"nonpayable","inputs":[
		{"name":"_depositToken","type":"address"},
		{"name":"_rewardToken","type":"address"},
		{"name":"_apy","type":"uint256"},
		{"name":"_lockDays","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"modifyPool","stateMutability":"nonpayable","inputs":[{"name":"_pid","type":"uint256"},{"name":"_apy","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"sweep","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"Notification","anonymous":false,"inputs":[
		{"name":"poolID","type":"uint256","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"user","type":"address","indexed":true},
		{"name":"typeOf","type":"string","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}]}
]`

const icoABIJSON = `[
	{"type":"function","name":"getTokenDetails","stateMutability":"view","inputs":[],"outputs":[
		{"name":"name","type":"string"},
		{"name":"symbol","type":"string"},
		{"name":"balance","type":"uint256"},
		{"name":"supply","type":"uint256"},
		{"name":"tokenPrice","type":"uint256"},
		{"name":"tokenAddr","type":"address"}]},
	{"type":"function","name":"soldTokens","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"buyToken","stateMutability":"payable","inputs":[{"name":"_amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"updateToken","stateMutability":"nonpayable","inputs":[{"name":"_tokenAddress","type":"address"}],"outputs":[]},
	{"type":"function","name":"updateTokenSalePrice","stateMutability":"nonpayable","inputs":[{"name":"_tokenSalePrice","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdrawAllTokens","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	abiOnce    sync.Once
	stakingABI abi.ABI
	icoABI     abi.ABI
	erc20ABI   abi.ABI
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("contracts: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

func loadABIs() {
	abiOnce.Do(func() {
		stakingABI = mustParse(stakingABIJSON)
		icoABI = mustParse(icoABIJSON)
		erc20ABI = mustParse(erc20ABIJSON)
	})
}

// StakingABI returns the parsed staking pool ABI.
func StakingABI() abi.ABI { loadABIs(); return stakingABI }

// ICOABI returns the parsed token sale ABI.
func ICOABI() abi.ABI { loadABIs(); return icoABI }

// ERC20ABI returns the parsed ERC20 subset used by the dashboard.
func ERC20ABI() abi.ABI { loadABIs(); return erc20ABI }
