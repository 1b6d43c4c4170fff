// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package electrum

import (
	"encoding/json"
	"fmt"
)

// method names handled specially by the proxy
const (
	MethodServerVersion       = "server.version"
	MethodTransactionGet      = "blockchain.transaction.get"
	MethodHeadersSubscribe    = "blockchain.headers.subscribe"
	MethodScripthashSubscribe = "blockchain.scripthash.subscribe"
)

// fixed identification sent on every new upstream connection
const (
	ClientName      = "electrumproxy"
	ProtocolVersion = "1.4"
)

// Request - a single JSON-RPC request line
//
// the id is kept as raw JSON so that client chosen number or string
// ids survive a round trip through the proxy unchanged
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response - a single JSON-RPC response line
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error - a JSON-RPC error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error - the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// paramList - decode the params array lazily
func (r *Request) paramList() []json.RawMessage {
	var params []json.RawMessage
	if nil == r.Params {
		return nil
	}
	if err := json.Unmarshal(r.Params, &params); nil != err {
		return nil
	}
	return params
}

// StringParam - fetch params[i] as a string
func (r *Request) StringParam(i int) (string, bool) {
	params := r.paramList()
	if i >= len(params) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(params[i], &s); nil != err {
		return "", false
	}
	return s, true
}

// IsVerbose - detect the verbose flag of a transaction.get request
//
// the protocol defines the flag as a boolean but some clients send
// the bitcoind style 0/1 instead
func (r *Request) IsVerbose() bool {
	params := r.paramList()
	if len(params) < 2 {
		return false
	}

	var b bool
	if err := json.Unmarshal(params[1], &b); nil == err {
		return b
	}
	var n float64
	if err := json.Unmarshal(params[1], &n); nil == err {
		return 0 != n
	}
	return false
}

// IsNotification - true for a server push message
//
// a push message carries a method but no client originated id
func (r *Request) IsNotification() bool {
	if "" == r.Method {
		return false
	}
	return 0 == len(r.ID) || "null" == string(r.ID)
}
