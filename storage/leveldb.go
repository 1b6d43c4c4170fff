// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/util"
)

// single byte key prefixes to separate the pools
const (
	prefixRawTx     = 'R'
	prefixVerboseTx = 'V'
	prefixPin       = 'P'
)

type levelDBStore struct {
	db  *leveldb.DB
	log *logger.L
}

// NewLevelDB - open or create a persistent store under directory
func NewLevelDB(directory string) (Store, error) {
	db, err := leveldb.OpenFile(directory, nil)
	if nil != err {
		return nil, err
	}
	return &levelDBStore{
		db:  db,
		log: logger.New("storage"),
	}, nil
}

// Close - flush and close the database
func (s *levelDBStore) Close() error {
	return s.db.Close()
}

func pooledKey(prefix byte, key string) []byte {
	k := make([]byte, 1+len(key))
	k[0] = prefix
	copy(k[1:], key)
	return k
}

func (s *levelDBStore) get(prefix byte, key string) ([]byte, bool) {
	value, err := s.db.Get(pooledKey(prefix, key), nil)
	if leveldb.ErrNotFound == err {
		return nil, false
	}
	if nil != err {
		s.log.Errorf("get: %q error: %s", key, err)
		return nil, false
	}
	return value, true
}

// cache writes are best effort: a failed insert only costs a later
// refetch, so errors are logged and not propagated
func (s *levelDBStore) put(prefix byte, key string, value []byte) {
	err := s.db.Put(pooledKey(prefix, key), value, nil)
	if nil != err {
		s.log.Errorf("put: %q error: %s", key, err)
	}
}

// GetRawTx - cached raw transaction hex
func (s *levelDBStore) GetRawTx(txid string) (string, bool) {
	value, ok := s.get(prefixRawTx, txid)
	if !ok {
		return "", false
	}
	return string(value), true
}

// PutRawTx - store raw transaction hex
func (s *levelDBStore) PutRawTx(txid string, hex string) {
	s.put(prefixRawTx, txid, []byte(hex))
}

// GetVerboseTx - cached verbose transaction JSON
func (s *levelDBStore) GetVerboseTx(txid string) ([]byte, bool) {
	return s.get(prefixVerboseTx, txid)
}

// PutVerboseTx - store verbose transaction JSON
func (s *levelDBStore) PutVerboseTx(txid string, data []byte) {
	s.put(prefixVerboseTx, txid, data)
}

// Pin - fetch the pinned certificate fingerprint for a host
func (s *levelDBStore) Pin(host string) (util.FingerprintBytes, bool) {
	fingerprint := util.FingerprintBytes{}
	value, ok := s.get(prefixPin, host)
	if !ok || len(fingerprint) != len(value) {
		return fingerprint, false
	}
	copy(fingerprint[:], value)
	return fingerprint, true
}

// SetPin - pin a certificate fingerprint for a host
func (s *levelDBStore) SetPin(host string, fingerprint util.FingerprintBytes) {
	s.put(prefixPin, host, fingerprint[:])
}
