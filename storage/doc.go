// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage - cache stores for the proxy
//
// Transaction data is content addressed by txid and only ever
// inserted, never mutated, so concurrent writers for the same key
// converge to the same value and last-write-wins needs no locking
// beyond what the backing store provides.
//
// Two implementations: LevelDB for a persistent cache and an
// in-memory store for ephemeral use and tests.  Both also hold the
// trust-on-first-use certificate pins.
package storage
