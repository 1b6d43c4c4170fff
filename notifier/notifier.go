// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package notifier - typed events from server subscriptions
//
// A dedicated upstream connection is subscribed to block headers and
// a set of script hashes; its push messages are classified into the
// electrum.Notification variants and broadcast to any number of
// subscribers.  ConnectionLost is always the final event of a
// session; reconnecting and re-subscribing is the consumer's job.
package notifier

import (
	"encoding/json"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/background"
	"github.com/bitmark-inc/electrumproxy/electrum"
	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/messagebus"
	"github.com/bitmark-inc/electrumproxy/upstream"
)

// Notifier - one subscription session over one connection
type Notifier struct {
	sync.Mutex

	log       *logger.L
	conn      *upstream.Connection
	bus       *messagebus.Bus
	processes *background.T
	started   bool
}

// New - wrap a connection; no subscriptions are made yet
func New(conn *upstream.Connection) *Notifier {
	return &Notifier{
		log:  logger.New("notifier"),
		conn: conn,
		bus:  messagebus.New(),
	}
}

// Subscribe - a channel of electrum.Notification values
//
// attach before StartSubscriptions or accept missing early events;
// there is no replay
func (n *Notifier) Subscribe() <-chan interface{} {
	return n.bus.Subscribe()
}

// StartSubscriptions - subscribe to headers and the given script
// hashes, then launch the background read loop
//
// the initial response of every subscription is awaited
// synchronously; after that the call returns immediately
func (n *Notifier) StartSubscriptions(scriptHashes []string) error {
	n.Lock()
	defer n.Unlock()

	if n.started {
		return fault.AlreadyInitialised
	}

	if _, err := n.conn.Call(electrum.MethodHeadersSubscribe, nil); nil != err {
		return err
	}
	for _, scriptHash := range scriptHashes {
		_, err := n.conn.Call(electrum.MethodScripthashSubscribe, []interface{}{scriptHash})
		if nil != err {
			return err
		}
	}

	n.processes = background.Start(background.Processes{
		&reader{notifier: n},
	}, nil)
	n.started = true

	n.log.Infof("subscribed to headers and %d script hashes", len(scriptHashes))
	return nil
}

// Stop - terminate the session
//
// closing the connection unblocks the read loop, which emits
// ConnectionLost as its final event
func (n *Notifier) Stop() {
	n.Lock()
	defer n.Unlock()

	if !n.started {
		return
	}
	n.conn.Close()
	n.processes.Stop()
	n.processes = nil
	n.started = false
}

// CheckForScriptHashChanges - compare cached statuses against fresh
// server state
//
// a cached empty string denotes a script hash with no history, the
// state the server reports as a null status; the two compare equal
//
// deliberately conservative: an empty map, a failed query or any
// difference reports a change so the caller resyncs; false only
// when every hash was confirmed unchanged
func (n *Notifier) CheckForScriptHashChanges(cachedStatuses map[string]string) bool {

	if 0 == len(cachedStatuses) {
		return true
	}

	for scriptHash, cached := range cachedStatuses {
		result, err := n.conn.Call(electrum.MethodScripthashSubscribe, []interface{}{scriptHash})
		if nil != err {
			n.log.Warnf("status query failed for %s: %s", scriptHash, err)
			return true
		}

		var fresh *string
		if err := json.Unmarshal(result, &fresh); nil != err {
			return true
		}

		current := ""
		if nil != fresh {
			current = *fresh
		}
		if current != cached {
			n.log.Debugf("script hash changed: %s", scriptHash)
			return true
		}
	}
	return false
}

// reader - the background read loop
type reader struct {
	notifier *Notifier
}

func (r *reader) Run(args interface{}, shutdown <-chan struct{}) {
	n := r.notifier

	for line := range n.conn.Notifications() {
		event, ok := classify(line)
		if !ok {
			n.log.Warnf("unclassifiable push: %s", line)
			continue
		}
		n.bus.Send(event)
	}

	// end of stream or socket error: the one and only loss event
	n.bus.Send(electrum.ConnectionLost{})
	n.bus.Release()
}

// classify - turn one raw push line into a typed event
func classify(line []byte) (electrum.Notification, bool) {

	var push electrum.Request
	if err := json.Unmarshal(line, &push); nil != err {
		return nil, false
	}

	switch push.Method {

	case electrum.MethodHeadersSubscribe:
		var params []struct {
			Height int64  `json:"height"`
			Hex    string `json:"hex"`
		}
		if err := json.Unmarshal(push.Params, &params); nil != err || 0 == len(params) {
			return nil, false
		}
		return electrum.NewBlockHeader{
			Height: params[0].Height,
			Header: params[0].Hex,
		}, true

	case electrum.MethodScripthashSubscribe:
		var params []*string
		if err := json.Unmarshal(push.Params, &params); nil != err || 0 == len(params) || nil == params[0] {
			return nil, false
		}
		event := electrum.ScriptHashChanged{ScriptHash: *params[0]}
		if len(params) > 1 {
			event.Status = params[1]
		}
		return event, true
	}

	return nil, false
}
