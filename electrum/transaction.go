// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package electrum

import (
	"math"
)

// SatoshisPerBitcoin - conversion factor for amounts
const SatoshisPerBitcoin = 100000000

// VerboseTx - decoded transaction as returned by a verbose
// blockchain.transaction.get
//
// a zero size/vsize/weight means the server omitted the field; no
// real transaction has a zero for any of them
type VerboseTx struct {
	TxID      string `json:"txid"`
	Hex       string `json:"hex,omitempty"`
	Size      int64  `json:"size,omitempty"`
	VSize     int64  `json:"vsize,omitempty"`
	Weight    int64  `json:"weight,omitempty"`
	Vin       []Vin  `json:"vin"`
	Vout      []Vout `json:"vout"`
	Blocktime int64  `json:"blocktime,omitempty"`
	Time      int64  `json:"time,omitempty"`
}

// Vin - a transaction input
//
// Prevout is only present when the server echoes previous output
// details; without it the input cannot be attributed to an address
type Vin struct {
	TxID     string   `json:"txid,omitempty"`
	Vout     uint32   `json:"vout"`
	Coinbase string   `json:"coinbase,omitempty"`
	Prevout  *Prevout `json:"prevout,omitempty"`
}

// IsCoinbase - coinbase inputs create coins and never debit an address
func (in *Vin) IsCoinbase() bool {
	return "" != in.Coinbase
}

// Prevout - inline previous output data of an input
type Prevout struct {
	Value        float64      `json:"value"` // BTC
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// Vout - a transaction output
type Vout struct {
	Value        float64      `json:"value"` // BTC
	N            uint32       `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// ScriptPubKey - address part of an output script
//
// older servers return an addresses array, newer ones a single
// address field
type ScriptPubKey struct {
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// MatchesAddress - check if the script pays the given address
func (s *ScriptPubKey) MatchesAddress(address string) bool {
	if "" == address {
		return false
	}
	if s.Address == address {
		return true
	}
	for _, a := range s.Addresses {
		if a == address {
			return true
		}
	}
	return false
}

// FirstAddress - the primary address of the script, empty if unknown
func (s *ScriptPubKey) FirstAddress() string {
	if "" != s.Address {
		return s.Address
	}
	if 0 != len(s.Addresses) {
		return s.Addresses[0]
	}
	return ""
}

// Satoshis - convert a BTC amount to satoshis with rounding
//
// float arithmetic on amounts only becomes exact again after this
// rounding step, so convert once per final figure
func Satoshis(btc float64) int64 {
	return int64(math.Round(btc * SatoshisPerBitcoin))
}
