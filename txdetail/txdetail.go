// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txdetail - data derived from verbose transactions
//
// Size metrics and per-address accounting are pure functions of the
// verbose JSON; the only stateful part is resolving that JSON from
// the cache with a network fallback.  Lookups are best effort: any
// failure yields a not-found result instead of an error escaping to
// the caller's sync logic.
package txdetail

import (
	"encoding/json"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/electrum"
	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/storage"
)

// Fetcher - the single upstream operation the calculators need
//
// satisfied by upstream.Connection
type Fetcher interface {
	Call(method string, params interface{}) (json.RawMessage, error)
}

// TxSizeMetrics - size figures for fee rate computation
type TxSizeMetrics struct {
	TxID   string
	Size   int64
	VSize  int64
	Weight int64
}

// AddressTxInfo - what one transaction did to one address
//
// accounting is best effort: inputs without inline prevout data
// cannot be attributed, so Fee stays nil whenever any value is
// unknown
type AddressTxInfo struct {
	NetAmount    int64  // satoshis, negative for a spend
	Timestamp    int64  // unix seconds, zero when unknown
	Counterparty string // empty for a pure receive
	Fee          *int64 // satoshis, nil when not computable
}

// Calculator - cache backed derived data access
type Calculator struct {
	log     *logger.L
	store   storage.TxStore
	fetcher Fetcher // nil restricts resolution to the cache
}

// New - create a calculator over a cache and an optional fetcher
func New(store storage.TxStore, fetcher Fetcher) *Calculator {
	return &Calculator{
		log:     logger.New("txdetail"),
		store:   store,
		fetcher: fetcher,
	}
}

// resolveVerbose - cache first, then one verbose fetch
//
// a successful fetch is cached so a later call is answered locally
func (c *Calculator) resolveVerbose(txid string) (*electrum.VerboseTx, error) {

	data, ok := c.store.GetVerboseTx(txid)
	if !ok {
		if nil == c.fetcher {
			return nil, fault.TransactionNotFound
		}
		result, err := c.fetcher.Call(electrum.MethodTransactionGet,
			[]interface{}{txid, true})
		if nil != err {
			c.log.Debugf("verbose fetch %s failed: %s", txid, err)
			return nil, fault.TransactionNotFound
		}
		data = result
		c.store.PutVerboseTx(txid, data)
	}

	var tx electrum.VerboseTx
	if err := json.Unmarshal(data, &tx); nil != err {
		c.log.Warnf("malformed verbose JSON for %s: %s", txid, err)
		return nil, fault.TransactionNotFound
	}
	return &tx, nil
}

// GetTransactionDetails - size metrics for a transaction
//
// vsize priority: the explicit vsize field, else ceil(weight/4),
// else size (legacy transactions where both are equal); all three
// absent means not found, zeroes are never fabricated
func (c *Calculator) GetTransactionDetails(txid string) (TxSizeMetrics, error) {

	tx, err := c.resolveVerbose(txid)
	if nil != err {
		return TxSizeMetrics{}, err
	}

	vsize := int64(0)
	switch {
	case 0 != tx.VSize:
		vsize = tx.VSize
	case 0 != tx.Weight:
		vsize = (tx.Weight + 3) / 4
	case 0 != tx.Size:
		vsize = tx.Size
	default:
		return TxSizeMetrics{}, fault.TransactionNotFound
	}

	metrics := TxSizeMetrics{
		TxID:   txid,
		Size:   tx.Size,
		VSize:  vsize,
		Weight: tx.Weight,
	}
	if 0 == metrics.Size {
		metrics.Size = vsize
	}
	if 0 == metrics.Weight {
		metrics.Weight = vsize * 4
	}
	return metrics, nil
}

// GetAddressTxInfo - net amount, fee, timestamp and counterparty of
// a transaction from one address' point of view
func (c *Calculator) GetAddressTxInfo(txid string, address string) (AddressTxInfo, error) {

	tx, err := c.resolveVerbose(txid)
	if nil != err {
		return AddressTxInfo{}, err
	}

	credited := 0.0 // BTC received by address
	debited := 0.0  // BTC spent from address
	outputTotal := 0.0
	inputTotal := 0.0
	feeComputable := true
	spendInputs := 0

	for _, out := range tx.Vout {
		outputTotal += out.Value
		if out.ScriptPubKey.MatchesAddress(address) {
			credited += out.Value
		}
	}

	for _, in := range tx.Vin {
		if in.IsCoinbase() {
			// created coins: no debit and no bearing on the fee
			continue
		}
		spendInputs += 1
		if nil == in.Prevout {
			// unattributable input: spend and fee accounting
			// degrade to best effort
			feeComputable = false
			continue
		}
		inputTotal += in.Prevout.Value
		if in.Prevout.ScriptPubKey.MatchesAddress(address) {
			debited += in.Prevout.Value
		}
	}

	info := AddressTxInfo{
		NetAmount: electrum.Satoshis(credited - debited),
	}

	if feeComputable && spendInputs > 0 {
		fee := electrum.Satoshis(inputTotal - outputTotal)
		info.Fee = &fee
	}

	if debited > 0 {
		// a spend: report where the money went
		for _, out := range tx.Vout {
			if !out.ScriptPubKey.MatchesAddress(address) {
				if counterparty := out.ScriptPubKey.FirstAddress(); "" != counterparty {
					info.Counterparty = counterparty
					break
				}
			}
		}
	}

	switch {
	case 0 != tx.Blocktime:
		info.Timestamp = tx.Blocktime
	case 0 != tx.Time:
		info.Timestamp = tx.Time
	}

	return info, nil
}
