// Package ethtest provides a mock ethereum JSON-RPC node for tests.
package ethtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Result returns the reply for a JSON-RPC call. Returning a nil result replies with JSON null.
type Result func(params []interface{}) interface{}

// Node is a mock ethereum node. Replies are looked up by method name.
type Node struct {
	*httptest.Server

	mu      sync.Mutex
	results map[string]Result
	calls   map[string]int
}

type request struct {
	Version string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  []interface{}    `json:"params"`
	ID      *json.RawMessage `json:"id"`
}

type response struct {
	Version string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id"`
	Result  interface{}      `json:"result"`
}

type errResponse struct {
	Version string                 `json:"jsonrpc"`
	ID      *json.RawMessage       `json:"id"`
	Error   map[string]interface{} `json:"error"`
}

// NewNode starts a mock node. Close it when done.
func NewNode() *Node {
	n := &Node{results: map[string]Result{}, calls: map[string]int{}}
	n.Server = httptest.NewServer(http.HandlerFunc(n.handle))

	return n
}

// On sets the reply for method.
func (n *Node) On(method string, r Result) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.results[method] = r
}

// Value sets a constant reply for method.
func (n *Node) Value(method string, v interface{}) {
	n.On(method, func([]interface{}) interface{} { return v })
}

// Calls returns how many times method has been called.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.calls[method]
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	var (
		req    request
		reply  interface{}
		rpcErr = func(code int, msg string) {
			reply = errResponse{Version: "2.0", ID: req.ID, Error: map[string]interface{}{"code": code, "message": msg}}
		}
	)

	defer func() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(reply)
	}()

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rpcErr(-32700, err.Error())

		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	f, ok := n.results[req.Method]
	n.mu.Unlock()

	if !ok {
		rpcErr(-32601, "method not found: "+req.Method)

		return
	}

	reply = response{Version: "2.0", ID: req.ID, Result: f(req.Params)}
}
