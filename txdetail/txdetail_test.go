// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txdetail_test

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/electrum"
	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/storage"
	"github.com/bitmark-inc/electrumproxy/txdetail"
)

const testingDirName = "testing"

func TestMain(m *testing.M) {
	removeFiles()
	_ = os.Mkdir(testingDirName, 0700)

	logging := logger.Configuration{
		Directory: testingDirName,
		File:      "testing.log",
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}
	if err := logger.Initialise(logging); nil != err {
		panic(fmt.Sprintf("logger setup failed: %s", err))
	}

	result := m.Run()

	logger.Finalise()
	removeFiles()
	os.Exit(result)
}

func removeFiles() {
	_ = os.RemoveAll(testingDirName)
}

// scriptedFetcher - returns one canned result and counts calls
type scriptedFetcher struct {
	calls  int
	result json.RawMessage
	err    error
}

func (f *scriptedFetcher) Call(method string, params interface{}) (json.RawMessage, error) {
	f.calls += 1
	if nil != f.err {
		return nil, f.err
	}
	return f.result, nil
}

const (
	txidSegwit = "1111111111111111111111111111111111111111111111111111111111111111"
	txidLegacy = "2222222222222222222222222222222222222222222222222222222222222222"
)

func TestTransactionDetailsVSizePriority(t *testing.T) {

	testCases := []struct {
		name           string
		verbose        string
		expectedSize   int64
		expectedVSize  int64
		expectedWeight int64
	}{
		{
			name:           "explicit vsize wins",
			verbose:        `{"txid":"x","size":226,"vsize":144,"weight":573}`,
			expectedSize:   226,
			expectedVSize:  144,
			expectedWeight: 573,
		},
		{
			name:           "weight rounds up",
			verbose:        `{"txid":"x","size":226,"weight":573}`,
			expectedSize:   226,
			expectedVSize:  144, // ceil(573/4)
			expectedWeight: 573,
		},
		{
			name:           "legacy size only",
			verbose:        `{"txid":"x","size":226}`,
			expectedSize:   226,
			expectedVSize:  226,
			expectedWeight: 904,
		},
		{
			name:           "missing size backfilled from vsize",
			verbose:        `{"txid":"x","vsize":144}`,
			expectedSize:   144,
			expectedVSize:  144,
			expectedWeight: 576,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			store := storage.NewMemory()
			store.PutVerboseTx(txidSegwit, []byte(testCase.verbose))

			calc := txdetail.New(store, nil)
			metrics, err := calc.GetTransactionDetails(txidSegwit)
			assert.Nil(t, err, "details")
			assert.Equal(t, txidSegwit, metrics.TxID, "txid")
			assert.Equal(t, testCase.expectedSize, metrics.Size, "size")
			assert.Equal(t, testCase.expectedVSize, metrics.VSize, "vsize")
			assert.Equal(t, testCase.expectedWeight, metrics.Weight, "weight")
		})
	}
}

func TestTransactionDetailsNotFound(t *testing.T) {
	store := storage.NewMemory()
	calc := txdetail.New(store, nil)

	// no cache entry and no fetcher
	_, err := calc.GetTransactionDetails(txidSegwit)
	assert.Equal(t, fault.TransactionNotFound, err, "cache miss")

	// all three metrics absent
	store.PutVerboseTx(txidSegwit, []byte(`{"txid":"x"}`))
	_, err = calc.GetTransactionDetails(txidSegwit)
	assert.Equal(t, fault.TransactionNotFound, err, "no metrics")

	// malformed JSON
	store.PutVerboseTx(txidLegacy, []byte(`{broken`))
	_, err = calc.GetTransactionDetails(txidLegacy)
	assert.Equal(t, fault.TransactionNotFound, err, "malformed")
}

func TestTransactionDetailsFetchAndCache(t *testing.T) {
	store := storage.NewMemory()
	fetcher := &scriptedFetcher{
		result: json.RawMessage(`{"txid":"x","vsize":144}`),
	}
	calc := txdetail.New(store, fetcher)

	metrics, err := calc.GetTransactionDetails(txidSegwit)
	assert.Nil(t, err, "first lookup")
	assert.Equal(t, int64(144), metrics.VSize, "vsize")
	assert.Equal(t, 1, fetcher.calls, "one fetch")

	// second call is answered from the cache
	_, err = calc.GetTransactionDetails(txidSegwit)
	assert.Nil(t, err, "second lookup")
	assert.Equal(t, 1, fetcher.calls, "no refetch")
}

func TestTransactionDetailsFetchFailure(t *testing.T) {
	store := storage.NewMemory()
	fetcher := &scriptedFetcher{
		err: &electrum.Error{Code: 2, Message: "missing transaction"},
	}
	calc := txdetail.New(store, fetcher)

	_, err := calc.GetTransactionDetails(txidSegwit)
	assert.Equal(t, fault.TransactionNotFound, err, "fetch failure")

	// a failed fetch must not poison the cache
	_, ok := store.GetVerboseTx(txidSegwit)
	assert.False(t, ok, "nothing cached")
}

const (
	addressMine  = "bc1qmine00000000000000000000000000000000000"
	addressOther = "bc1qother0000000000000000000000000000000000"
	addressThird = "bc1qthird0000000000000000000000000000000000"
)

func cacheTx(store storage.Store, txid string, verbose string) {
	store.PutVerboseTx(txid, []byte(verbose))
}

func TestAddressTxInfoReceive(t *testing.T) {
	store := storage.NewMemory()
	cacheTx(store, txidSegwit, `{
		"txid": "x",
		"vin": [{"txid": "aa", "vout": 0, "prevout": {
			"value": 0.02,
			"scriptPubKey": {"address": "`+addressOther+`"}}}],
		"vout": [
			{"value": 0.0150, "n": 0, "scriptPubKey": {"address": "`+addressMine+`"}},
			{"value": 0.0045, "n": 1, "scriptPubKey": {"address": "`+addressOther+`"}}
		],
		"blocktime": 1700000000
	}`)

	calc := txdetail.New(store, nil)
	info, err := calc.GetAddressTxInfo(txidSegwit, addressMine)
	assert.Nil(t, err, "info")
	assert.Equal(t, int64(1500000), info.NetAmount, "net amount")
	assert.Equal(t, int64(1700000000), info.Timestamp, "timestamp")
	assert.Equal(t, "", info.Counterparty, "receive has no counterparty")
	assert.NotNil(t, info.Fee, "fee computable")
	assert.Equal(t, int64(50000), *info.Fee, "fee")
}

func TestAddressTxInfoReceiveWithoutPrevouts(t *testing.T) {
	store := storage.NewMemory()
	cacheTx(store, txidLegacy, `{
		"txid": "x",
		"vin": [{"txid": "aa", "vout": 0}],
		"vout": [
			{"value": 0.001, "n": 0, "scriptPubKey": {"address": "`+addressMine+`"}}
		]
	}`)

	calc := txdetail.New(store, nil)
	info, err := calc.GetAddressTxInfo(txidLegacy, addressMine)
	assert.Nil(t, err, "info")
	assert.Equal(t, int64(100000), info.NetAmount, "net amount")
	assert.Nil(t, info.Fee, "fee unset without prevout data")
	assert.Equal(t, "", info.Counterparty, "no counterparty")
}

func TestAddressTxInfoSpend(t *testing.T) {
	store := storage.NewMemory()
	cacheTx(store, txidSegwit, `{
		"txid": "x",
		"vin": [{"txid": "aa", "vout": 0, "prevout": {
			"value": 0.01,
			"scriptPubKey": {"address": "`+addressMine+`"}}}],
		"vout": [
			{"value": 0.0060, "n": 0, "scriptPubKey": {"address": "`+addressOther+`"}},
			{"value": 0.0035, "n": 1, "scriptPubKey": {"address": "`+addressMine+`"}}
		],
		"time": 1690000000
	}`)

	calc := txdetail.New(store, nil)
	info, err := calc.GetAddressTxInfo(txidSegwit, addressMine)
	assert.Nil(t, err, "info")
	// received 0.0035 change, spent 0.01
	assert.Equal(t, int64(-650000), info.NetAmount, "net amount")
	assert.Equal(t, int64(1690000000), info.Timestamp, "time fallback")
	assert.Equal(t, addressOther, info.Counterparty, "counterparty")
	assert.NotNil(t, info.Fee, "fee computable")
	assert.Equal(t, int64(50000), *info.Fee, "fee")
}

func TestAddressTxInfoCounterpartySkipsOwnOutputs(t *testing.T) {
	store := storage.NewMemory()
	cacheTx(store, txidSegwit, `{
		"txid": "x",
		"vin": [{"txid": "aa", "vout": 0, "prevout": {
			"value": 0.01,
			"scriptPubKey": {"address": "`+addressMine+`"}}}],
		"vout": [
			{"value": 0.0040, "n": 0, "scriptPubKey": {"address": "`+addressMine+`"}},
			{"value": 0.0030, "n": 1, "scriptPubKey": {"addresses": ["`+addressThird+`"]}},
			{"value": 0.0025, "n": 2, "scriptPubKey": {"address": "`+addressOther+`"}}
		]
	}`)

	calc := txdetail.New(store, nil)
	info, err := calc.GetAddressTxInfo(txidSegwit, addressMine)
	assert.Nil(t, err, "info")
	// first output not paying the address wins, addresses array included
	assert.Equal(t, addressThird, info.Counterparty, "counterparty")
	assert.Equal(t, int64(0), info.Timestamp, "no timestamp")
}

func TestAddressTxInfoMissingPrevout(t *testing.T) {
	store := storage.NewMemory()
	cacheTx(store, txidSegwit, `{
		"txid": "x",
		"vin": [
			{"txid": "aa", "vout": 0, "prevout": {
				"value": 0.01,
				"scriptPubKey": {"address": "`+addressMine+`"}}},
			{"txid": "bb", "vout": 1}
		],
		"vout": [
			{"value": 0.0095, "n": 0, "scriptPubKey": {"address": "`+addressOther+`"}}
		]
	}`)

	calc := txdetail.New(store, nil)
	info, err := calc.GetAddressTxInfo(txidSegwit, addressMine)
	assert.Nil(t, err, "info")
	// one input lacks prevout data: fee cannot be trusted
	assert.Nil(t, info.Fee, "fee unset")
	// the attributable debit still counts
	assert.Equal(t, int64(-1000000), info.NetAmount, "net amount")
	assert.Equal(t, addressOther, info.Counterparty, "counterparty")
}

func TestAddressTxInfoCoinbase(t *testing.T) {
	store := storage.NewMemory()
	cacheTx(store, txidSegwit, `{
		"txid": "x",
		"vin": [{"coinbase": "03abcdef", "vout": 4294967295}],
		"vout": [
			{"value": 6.25, "n": 0, "scriptPubKey": {"address": "`+addressMine+`"}}
		],
		"blocktime": 1600000000
	}`)

	calc := txdetail.New(store, nil)
	info, err := calc.GetAddressTxInfo(txidSegwit, addressMine)
	assert.Nil(t, err, "info")
	assert.Equal(t, int64(625000000), info.NetAmount, "net amount")
	assert.Nil(t, info.Fee, "coinbase has no fee")
	assert.Equal(t, "", info.Counterparty, "no counterparty")
}

func TestAddressTxInfoUnrelatedAddress(t *testing.T) {
	store := storage.NewMemory()
	cacheTx(store, txidSegwit, `{
		"txid": "x",
		"vin": [{"txid": "aa", "vout": 0, "prevout": {
			"value": 0.01,
			"scriptPubKey": {"address": "`+addressOther+`"}}}],
		"vout": [
			{"value": 0.0095, "n": 0, "scriptPubKey": {"address": "`+addressThird+`"}}
		]
	}`)

	calc := txdetail.New(store, nil)
	info, err := calc.GetAddressTxInfo(txidSegwit, addressMine)
	assert.Nil(t, err, "info")
	assert.Equal(t, int64(0), info.NetAmount, "net amount")
	assert.Equal(t, "", info.Counterparty, "no counterparty")
	assert.NotNil(t, info.Fee, "fee still computable")
	assert.Equal(t, int64(50000), *info.Fee, "fee")
}
