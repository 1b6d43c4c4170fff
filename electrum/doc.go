// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package electrum - Electrum wire protocol data structures
//
// The protocol is JSON-RPC with exactly one JSON object per line.
// Requests carry id/method/params, responses carry id and either
// result or error, and server push messages carry method/params
// without a client originated id.
package electrum
