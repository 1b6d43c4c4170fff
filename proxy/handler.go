// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package proxy

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"

	"github.com/bitmark-inc/electrumproxy/electrum"
	"github.com/bitmark-inc/electrumproxy/upstream"
)

// client line scanner limits
const (
	initialLineBuffer = 64 * 1024
	maximumLineLength = 16 * 1024 * 1024
)

// handler - one wallet engine connection and its private upstream
type handler struct {
	proxy  *Proxy
	client net.Conn
	up     *upstream.Connection

	writeLock sync.Mutex // responses and relayed pushes interleave
}

// serve - the per-client session
//
// request handling is synchronous per line; only the push relay
// runs alongside it
func (p *Proxy) serve(client net.Conn) {
	defer p.clientWait.Done()
	defer p.clientCount.Decrement()
	defer client.Close()

	up, err := upstream.New(p.upstreamConfig, p.log)
	if nil != err {
		p.log.Errorf("upstream connect failed: %s", err)
		return
	}
	defer up.Close()

	h := &handler{
		proxy:  p,
		client: client,
		up:     up,
	}
	if !p.attach(h) {
		// Stop ran while the upstream dial was in flight; the
		// deferred closes tear both sockets down
		return
	}
	defer p.detach(h)

	// relay any server push lines belonging to subscriptions the
	// client made through the pass-through path
	go func() {
		for line := range up.Notifications() {
			_ = h.writeLine(line)
		}
	}()

	scanner := bufio.NewScanner(client)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maximumLineLength)

	for scanner.Scan() {
		if !h.dispatch(scanner.Bytes()) {
			break
		}
	}
}

func (h *handler) close() {
	_ = h.client.Close()
	h.up.Close()
}

func (h *handler) writeLine(line []byte) error {
	h.writeLock.Lock()
	defer h.writeLock.Unlock()

	_, err := h.client.Write(append(line, '\n'))
	return err
}

func (h *handler) writeResponse(response electrum.Response) bool {
	data, err := json.Marshal(response)
	if nil != err {
		h.proxy.log.Errorf("marshal response: %s", err)
		return false
	}
	return nil == h.writeLine(data)
}

// dispatch - answer one client line, from cache or upstream
//
// returns false when the session cannot continue
func (h *handler) dispatch(line []byte) bool {
	log := h.proxy.log

	var request electrum.Request
	if err := json.Unmarshal(line, &request); nil != err {
		log.Errorf("client sent invalid JSON: %s", err)
		return h.writeResponse(electrum.Response{
			ID:    json.RawMessage("null"),
			Error: &electrum.Error{Code: -32700, Message: "parse error"},
		})
	}

	if electrum.MethodTransactionGet == request.Method && !request.IsVerbose() {
		return h.rawTransactionGet(request)
	}

	response, err := h.up.Transmit(request)
	if nil != err {
		// upstream is unusable; drop the client so it reconnects
		log.Errorf("relay %s failed: %s", request.Method, err)
		return false
	}

	if electrum.MethodTransactionGet == request.Method && nil == response.Error {
		h.cacheVerbose(request, response)
	}

	return h.writeResponse(response)
}

// rawTransactionGet - the intercepted non-verbose path
//
// a cache hit is answered locally and never reaches the server; a
// miss is forwarded and a successful result cached for next time
func (h *handler) rawTransactionGet(request electrum.Request) bool {
	log := h.proxy.log

	txid, ok := request.StringParam(0)
	if !ok {
		// malformed request: let the server produce its error
		response, err := h.up.Transmit(request)
		if nil != err {
			return false
		}
		return h.writeResponse(response)
	}

	if hex, ok := h.proxy.store.GetRawTx(txid); ok {
		log.Debugf("raw cache hit: %s", txid)
		result, err := json.Marshal(hex)
		if nil != err {
			return false
		}
		return h.writeResponse(electrum.Response{ID: request.ID, Result: result})
	}

	response, err := h.up.Transmit(request)
	if nil != err {
		log.Errorf("relay %s failed: %s", request.Method, err)
		return false
	}

	if nil == response.Error {
		var hex string
		if err := json.Unmarshal(response.Result, &hex); nil == err && "" != hex {
			h.proxy.store.PutRawTx(txid, hex)
		}
	}

	return h.writeResponse(response)
}

// cacheVerbose - store a successful verbose result, keyed by txid
func (h *handler) cacheVerbose(request electrum.Request, response electrum.Response) {
	txid, ok := request.StringParam(0)
	if !ok {
		return
	}

	// only cache an object result; the response itself is relayed
	// to the client unmodified either way
	var sniff struct {
		TxID string `json:"txid"`
	}
	if err := json.Unmarshal(response.Result, &sniff); nil != err {
		return
	}
	h.proxy.store.PutVerboseTx(txid, response.Result)
}
