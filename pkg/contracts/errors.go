package contracts

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrContractCall      = errors.New("contract call failed")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrNotConfigured     = errors.New("contract address not configured")
)

// CallError is a failed read or write against a contract method.
type CallError struct {
	Contract string
	Method   string
	Reason   string
	Err      error
}

func (e *CallError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s.%s: %s", e.Contract, e.Method, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %v", e.Contract, e.Method, e.Err)
}

func (e *CallError) Unwrap() []error { return []error{ErrContractCall, e.Err} }

func callError(contract, method string, err error) error {
	return &CallError{Contract: contract, Method: method, Reason: RevertReason(err), Err: err}
}

// RevertReason decodes an Error(string) revert payload carried by err, or
// returns "" when there is none.
func RevertReason(err error) string {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return ""
	}
	s, ok := de.ErrorData().(string)
	if !ok {
		return ""
	}
	data, derr := hexutil.Decode(s)
	if derr != nil {
		return ""
	}
	reason, uerr := abi.UnpackRevert(data)
	if uerr != nil {
		return ""
	}
	return reason
}

// Describe renders err for a user: the revert reason when one is available,
// otherwise the error text.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ce *CallError
	if errors.As(err, &ce) && ce.Reason != "" {
		return ce.Reason
	}
	if reason := RevertReason(err); reason != "" {
		return reason
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
