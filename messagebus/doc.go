// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package messagebus - a broadcast message queue
//
// Every subscriber receives every item sent after it subscribed, in
// send order.  There is no replay: a late subscriber never sees
// earlier items.  Subscriber channels are buffered; an item is
// dropped for a subscriber whose buffer is full rather than blocking
// the sender.
package messagebus
