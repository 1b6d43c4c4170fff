// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package messagebus

import (
	"sync"
)

// internal constants
const (
	subscriberQueueSize = 100
)

// Bus - handle for a broadcast queue
type Bus struct {
	sync.Mutex
	subscribers []chan interface{}
	released    bool
}

// New - create a broadcast queue
func New() *Bus {
	return &Bus{}
}

// Subscribe - attach a new reader to the queue
//
// items sent before this call are not replayed
func (bus *Bus) Subscribe() <-chan interface{} {
	bus.Lock()
	defer bus.Unlock()

	ch := make(chan interface{}, subscriberQueueSize)
	if bus.released {
		close(ch)
		return ch
	}
	bus.subscribers = append(bus.subscribers, ch)
	return ch
}

// Send - data to queue for all current subscribers
func (bus *Bus) Send(item interface{}) {
	bus.Lock()
	defer bus.Unlock()

	if bus.released {
		return
	}
	for _, ch := range bus.subscribers {
		select {
		case ch <- item:
		default: // subscriber queue overflow
		}
	}
}

// Release - close all subscriber channels
//
// any Send after this point is discarded
func (bus *Bus) Release() {
	bus.Lock()
	defer bus.Unlock()

	if bus.released {
		return
	}
	bus.released = true
	for _, ch := range bus.subscribers {
		close(ch)
	}
	bus.subscribers = nil
}
