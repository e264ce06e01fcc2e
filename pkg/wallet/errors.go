package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 and JSON-RPC error codes the wallet boundary understands.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
	CodeMethodNotFound    = -32601
)

// Kind classifies a wallet failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindProviderUnavailable
	KindUserRejected
	KindNetworkSwitchFailed
	KindNetworkMismatch
)

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrUserRejected        = errors.New("request rejected in wallet")
	ErrNetworkSwitchFailed = errors.New("network switch failed")
	ErrNetworkMismatch     = errors.New("wallet is connected to the wrong network")
	ErrUnknown             = errors.New("unknown wallet error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindProviderUnavailable:
		return ErrProviderUnavailable
	case KindUserRejected:
		return ErrUserRejected
	case KindNetworkSwitchFailed:
		return ErrNetworkSwitchFailed
	case KindNetworkMismatch:
		return ErrNetworkMismatch
	default:
		return ErrUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindProviderUnavailable:
		return "ProviderUnavailable"
	case KindUserRejected:
		return "UserRejected"
	case KindNetworkSwitchFailed:
		return "NetworkSwitchFailed"
	case KindNetworkMismatch:
		return "NetworkMismatch"
	default:
		return "Unknown"
	}
}

// Error is a classified failure at the wallet boundary. It matches its Kind's
// sentinel with errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Code int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind.sentinel() }

// KindOf reports the classification of err, KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindUnknown
}

// Code extracts a JSON-RPC error code from err.
func Code(err error) (int, bool) {
	var we *Error
	if errors.As(err, &we) && we.Code != 0 {
		return we.Code, true
	}
	var re rpc.Error
	if errors.As(err, &re) {
		return re.ErrorCode(), true
	}
	return 0, false
}

// Classify converts a raw wallet RPC failure into an *Error. Already classified
// errors are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		return err
	}
	code, _ := Code(err)
	kind := KindUnknown
	switch {
	case code == CodeUserRejected:
		kind = KindUserRejected
	case code == CodeDisconnected || code == CodeChainDisconnected:
		kind = KindProviderUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindProviderUnavailable
	}
	return &Error{Kind: kind, Op: op, Code: code, Err: err}
}

func unavailable(op string, format string, args ...any) error {
	return &Error{Kind: KindProviderUnavailable, Op: op, Err: fmt.Errorf(format, args...)}
}
