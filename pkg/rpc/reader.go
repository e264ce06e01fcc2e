package rpc

import (
	"context"
	"math/big"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Reader is the dashboard's read connection. It dials on first use and keeps
// retrying on later calls while the endpoint is down, so a dead RPC only
// leaves the dashboard empty.
type Reader struct {
	url     string
	chainID int64
	log     *log.Logger

	mu     sync.Mutex
	client *ethclient.Client
}

// NewReader returns a Reader for url. A non-zero chainID is compared with the
// endpoint's on connect.
func NewReader(url string, chainID int64, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.Default()
	}
	return &Reader{url: url, chainID: chainID, log: logger.With("component", "reader")}
}

// Client returns the connected client, dialing if there is none yet.
func (r *Reader) Client(ctx context.Context) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}

	client, id, err := Dial(ctx, r.url)
	if err != nil {
		r.log.Warn("read rpc unavailable", "url", r.url, "err", err)
		return nil, err
	}
	if r.chainID != 0 && id.Cmp(big.NewInt(r.chainID)) != 0 {
		r.log.Warn("rpc chain id differs from config", "rpc", id, "config", r.chainID)
	}
	r.log.Info("read rpc connected", "url", r.url, "chain", id)
	r.client = client
	return client, nil
}

// Close releases the connection, if any.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}
