// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package electrum

// Notification - closed set of server push events
//
// consumers dispatch with a type switch over the three variants
type Notification interface {
	notification()
}

// ScriptHashChanged - status of a watched script hash changed
//
// a nil Status means the server reported a null status, i.e. the
// script has no history any more
type ScriptHashChanged struct {
	ScriptHash string
	Status     *string
}

// NewBlockHeader - a new block was connected at the server tip
type NewBlockHeader struct {
	Height int64
	Header string // raw header as hex
}

// ConnectionLost - the subscription stream terminated
//
// emitted exactly once as the final event of a session; the consumer
// decides whether to reconnect and re-subscribe
type ConnectionLost struct{}

func (ScriptHashChanged) notification() {}
func (NewBlockHeader) notification()    {}
func (ConnectionLost) notification()    {}
