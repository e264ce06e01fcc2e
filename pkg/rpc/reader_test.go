package rpc

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"stakedash/pkg/testutil"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	l := log.Default().With()
	l.SetLevel(log.FatalLevel)
	return l
}

func TestReader_RetriesUntilEndpointAnswers(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	srv := testutil.NewRPCServer(t, func(method string, params []json.RawMessage) (any, *testutil.RPCError) {
		if down.Load() {
			return nil, &testutil.RPCError{Code: -32000, Message: "node starting"}
		}
		return chainHandler(method, params)
	})

	r := NewReader(srv.URL, 11155111, quietLogger())
	defer r.Close()

	_, err := r.Client(context.Background())
	require.Error(t, err)

	down.Store(false)
	first, err := r.Client(context.Background())
	require.NoError(t, err)
	second, err := r.Client(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, srv.Calls("eth_chainId"))
}

func TestReader_Unreachable(t *testing.T) {
	r := NewReader("http://127.0.0.1:1", 0, quietLogger())
	defer r.Close()

	_, err := r.Client(context.Background())
	assert.Error(t, err)
}
