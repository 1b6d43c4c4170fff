// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	gocache "github.com/patrickmn/go-cache"

	"github.com/bitmark-inc/electrumproxy/util"
)

// transaction data never changes once learned, so nothing expires
type memoryStore struct {
	cache *gocache.Cache
}

// NewMemory - a purely in-memory store
func NewMemory() Store {
	return &memoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Close - nothing to release
func (s *memoryStore) Close() error {
	return nil
}

func memoryKey(prefix byte, key string) string {
	return string(prefix) + key
}

// GetRawTx - cached raw transaction hex
func (s *memoryStore) GetRawTx(txid string) (string, bool) {
	obj, ok := s.cache.Get(memoryKey(prefixRawTx, txid))
	if !ok {
		return "", false
	}
	return obj.(string), true
}

// PutRawTx - store raw transaction hex
func (s *memoryStore) PutRawTx(txid string, hex string) {
	s.cache.Set(memoryKey(prefixRawTx, txid), hex, gocache.NoExpiration)
}

// GetVerboseTx - cached verbose transaction JSON
func (s *memoryStore) GetVerboseTx(txid string) ([]byte, bool) {
	obj, ok := s.cache.Get(memoryKey(prefixVerboseTx, txid))
	if !ok {
		return nil, false
	}
	return obj.([]byte), true
}

// PutVerboseTx - store verbose transaction JSON
func (s *memoryStore) PutVerboseTx(txid string, data []byte) {
	s.cache.Set(memoryKey(prefixVerboseTx, txid), data, gocache.NoExpiration)
}

// Pin - fetch the pinned certificate fingerprint for a host
func (s *memoryStore) Pin(host string) (util.FingerprintBytes, bool) {
	obj, ok := s.cache.Get(memoryKey(prefixPin, host))
	if !ok {
		return util.FingerprintBytes{}, false
	}
	return obj.(util.FingerprintBytes), true
}

// SetPin - pin a certificate fingerprint for a host
func (s *memoryStore) SetPin(host string, fingerprint util.FingerprintBytes) {
	s.cache.Set(memoryKey(prefixPin, host), fingerprint, gocache.NoExpiration)
}
