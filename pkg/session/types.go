package session

import (
	"errors"
	"math/big"
)

// ErrNotConnected is returned when a signer or backend is requested while no
// account is connected.
var ErrNotConnected = errors.New("wallet not connected")

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State           State    `json:"state"`
	Account         string   `json:"account,omitempty"`
	ChainID         *big.Int `json:"chain_id,omitempty"`
	TargetChainID   *big.Int `json:"target_chain_id"`
	NetworkMismatch bool     `json:"network_mismatch"`
	IsConnected     bool     `json:"is_connected"`
	IsLoading       bool     `json:"is_loading"`
	Error           string   `json:"error,omitempty"`
	ErrorKind       string   `json:"error_kind,omitempty"`

	Err error `json:"-"`
}

// Subscriber receives a Snapshot after every session change.
type Subscriber chan Snapshot
