// Package rpc holds the read-only chain client helpers: dialing the configured
// endpoint and the configuration check run by --test.
package rpc

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"stakedash/pkg/config"
	"stakedash/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var DialTimeout = 10 * time.Second

// Dial connects to url and confirms it answers eth_chainId.
func Dial(ctx context.Context, url string) (*ethclient.Client, *big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", url, err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to get chain id from %s: %w", url, err)
	}
	return client, id, nil
}

// FetchRPCLatency measures a round trip to the endpoint.
func FetchRPCLatency(ctx context.Context, client *ethclient.Client) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := client.BlockNumber(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// CodeReader is the part of a chain client needed to look for deployed code.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// CheckContracts reports whether each configured contract address has code.
func CheckContracts(ctx context.Context, client CodeReader, c config.ContractsConfig) []models.ContractCheck {
	entries := []struct{ name, addr string }{
		{"staking", c.Staking},
		{"ico", c.ICO},
		{"deposit_token", c.DepositToken},
		{"reward_token", c.RewardToken},
	}
	checks := make([]models.ContractCheck, 0, len(entries))
	for _, e := range entries {
		check := models.ContractCheck{Name: e.name, Address: e.addr}
		switch {
		case strings.TrimSpace(e.addr) == "":
			check.Status = "unset"
		case !common.IsHexAddress(e.addr):
			check.Status = "error"
			check.Error = "invalid address"
		default:
			code, err := client.CodeAt(ctx, common.HexToAddress(e.addr), nil)
			switch {
			case err != nil:
				check.Status = "error"
				check.Error = err.Error()
			case len(code) == 0:
				check.Status = "no_code"
			default:
				check.Status = "ok"
			}
		}
		checks = append(checks, check)
	}
	return checks
}

// Check verifies cfg against its RPC endpoint. A zero configured chain id is
// filled in from the endpoint and the config saved to path unless dryRun.
func Check(ctx context.Context, cfg *config.Config, path string, dryRun bool) models.CheckReport {
	report := models.CheckReport{
		ConfigPath:     path,
		ValidStructure: true,
		RPCURL:         cfg.Network.RPCURL,
		ConfigChainID:  cfg.Network.ChainID,
		DryRun:         dryRun,
	}
	if err := cfg.Validate(); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		return report
	}

	client, id, err := Dial(ctx, cfg.Network.RPCURL)
	if err != nil {
		report.RPCStatus = "error"
		report.RPCError = err.Error()
		return report
	}
	defer client.Close()

	report.RPCStatus = "ok"
	report.ObservedChainID = id.Int64()
	if latency, err := FetchRPCLatency(ctx, client); err == nil {
		report.LatencyMillis = latency.Milliseconds()
	}

	switch {
	case cfg.Network.ChainID == 0:
		cfg.Network.ChainID = id.Int64()
		report.ChainIDUpdated = true
		report.ConfigUpdated = true
	case id.Cmp(big.NewInt(cfg.Network.ChainID)) != 0:
		report.Inconsistent = true
	}

	report.Contracts = CheckContracts(ctx, client, cfg.Contracts)

	if report.ConfigUpdated && !dryRun {
		if err := config.SaveConfig(*cfg, path); err != nil {
			report.SaveError = err.Error()
		}
	}
	return report
}

// Failed reports whether the check found a problem worth a non-zero exit.
func Failed(r models.CheckReport) bool {
	if !r.ValidStructure || r.RPCStatus != "ok" || r.Inconsistent {
		return true
	}
	for _, c := range r.Contracts {
		if c.Status == "error" || c.Status == "no_code" {
			return true
		}
	}
	return false
}

// PrintReport writes the human-readable form of r.
func PrintReport(w io.Writer, r models.CheckReport) {
	fmt.Fprintf(w, "Testing configuration at: %s\n", r.ConfigPath)
	if !r.ValidStructure {
		for _, e := range r.StructureErrors {
			fmt.Fprintf(w, "Error: %s\n", e)
		}
		return
	}

	fmt.Fprintf(w, "RPC: %s ... ", r.RPCURL)
	if r.RPCStatus != "ok" {
		fmt.Fprintf(w, "Failed: %s\n", r.RPCError)
		return
	}
	fmt.Fprintf(w, "OK (ChainID: %d, %dms)", r.ObservedChainID, r.LatencyMillis)
	switch {
	case r.ChainIDUpdated:
		fmt.Fprint(w, " - UPDATED CONFIG")
		if r.DryRun {
			fmt.Fprint(w, " (DRY RUN)")
		}
	case r.Inconsistent:
		fmt.Fprintf(w, " - MISMATCH! Expected %d", r.ConfigChainID)
	default:
		fmt.Fprint(w, " - Verified")
	}
	fmt.Fprintln(w)

	for _, c := range r.Contracts {
		line := fmt.Sprintf("  %-14s %s", c.Name, c.Status)
		if c.Address != "" {
			line = fmt.Sprintf("  %-14s %s %s", c.Name, c.Address, c.Status)
		}
		if c.Error != "" {
			line += ": " + c.Error
		}
		fmt.Fprintln(w, line)
	}

	if r.ConfigUpdated {
		switch {
		case r.DryRun:
			fmt.Fprintln(w, "Dry run enabled: Configuration NOT saved.")
		case r.SaveError != "":
			fmt.Fprintf(w, "Failed to save config: %s\n", r.SaveError)
		default:
			fmt.Fprintln(w, "Configuration saved successfully.")
		}
	}
}
