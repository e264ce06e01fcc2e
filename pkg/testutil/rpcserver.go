// Package testutil provides an in-process JSON-RPC server for exercising wallet
// and contract code against scripted responses.
package testutil

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Handler answers one JSON-RPC call. Returning a non-nil *RPCError sends an error
// response; otherwise result is encoded as the response result.
type Handler func(method string, params []json.RawMessage) (any, *RPCError)

// RPCServer records every call it serves.
type RPCServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewRPCServer starts a server that dispatches to h and closes with the test.
// Batch requests are supported.
func NewRPCServer(t testing.TB, h Handler) *RPCServer {
	t.Helper()
	s := &RPCServer{calls: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		if len(body) > 0 && body[0] == '[' {
			var reqs []request
			if err := json.Unmarshal(body, &reqs); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			resps := make([]response, 0, len(reqs))
			for _, req := range reqs {
				resps = append(resps, s.serve(h, req))
			}
			_ = json.NewEncoder(w).Encode(resps)
			return
		}

		var req request
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(s.serve(h, req))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *RPCServer) serve(h Handler, req request) response {
	s.mu.Lock()
	s.calls[req.Method]++
	s.mu.Unlock()

	result, rpcErr := h(req.Method, req.Params)
	resp := response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else if result == nil {
		resp.Result = json.RawMessage("null")
	} else {
		resp.Result = result
	}
	return resp
}

// Calls reports how many times method was served.
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// CallArgs is the first parameter of an eth_call request.
type CallArgs struct {
	From  string        `json:"from"`
	To    string        `json:"to"`
	Data  hexutil.Bytes `json:"data"`
	Input hexutil.Bytes `json:"input"`
}

// Calldata returns the call input, whichever field carried it.
func (c CallArgs) Calldata() []byte {
	if len(c.Input) > 0 {
		return c.Input
	}
	return c.Data
}

// DecodeCall parses eth_call params and resolves the ABI method being called.
func DecodeCall(parsed abi.ABI, params []json.RawMessage) (CallArgs, *abi.Method, bool) {
	var args CallArgs
	if len(params) == 0 || json.Unmarshal(params[0], &args) != nil {
		return args, nil, false
	}
	data := args.Calldata()
	if len(data) < 4 {
		return args, nil, false
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return args, nil, false
	}
	return args, m, true
}

// PackOutputs ABI-encodes the return values of method as a hex string result.
func PackOutputs(t testing.TB, parsed abi.ABI, method string, values ...any) string {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return "0x" + hex.EncodeToString(out)
}
