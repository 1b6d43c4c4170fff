// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package upstream - connection to a remote Electrum server
//
// A connection dials directly, over TLS with trust-on-first-use
// pinning, or through a local SOCKS proxy with the host name left
// for the proxy to resolve.  Every new connection starts with a
// server.version handshake.  Requests and responses are single JSON
// lines correlated by id, never by arrival order; server push
// messages are surfaced on a separate channel.
//
// A socket error is surfaced to the caller and never retried here:
// retry policy belongs to whoever can judge whether a retry is worth
// the cost, which over Tor it often is not.
package upstream
