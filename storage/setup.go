// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/bitmark-inc/electrumproxy/util"
)

// TxStore - the transaction cache interface used by the proxy and
// the calculators
//
// raw transactions are hex strings, verbose transactions are the
// raw JSON result objects as received from the server
type TxStore interface {
	GetRawTx(txid string) (string, bool)
	PutRawTx(txid string, hex string)
	GetVerboseTx(txid string) ([]byte, bool)
	PutVerboseTx(txid string, data []byte)
}

// PinStore - certificate pins for trust-on-first-use validation
type PinStore interface {
	Pin(host string) (util.FingerprintBytes, bool)
	SetPin(host string, fingerprint util.FingerprintBytes)
}

// Store - a complete backing store
type Store interface {
	TxStore
	PinStore
	Close() error
}
