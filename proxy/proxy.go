// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package proxy - the local bridge between a wallet engine and a
// remote Electrum server
//
// The proxy listens on an ephemeral loopback port.  Each accepted
// client gets its own upstream connection for request/response
// traffic so a slow subscription socket can never head-of-line
// block ordinary calls.  Most requests pass through verbatim; raw
// transaction fetches are served from the cache when possible and
// cached on the way back when not.
package proxy

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/background"
	"github.com/bitmark-inc/electrumproxy/counter"
	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/storage"
	"github.com/bitmark-inc/electrumproxy/upstream"
)

const (
	defaultMaximumClients = 10
	acceptRateLimit       = rate.Limit(10) // accepts per second
	acceptRateBurst       = 5
)

// Proxy - a loopback listener bridging one wallet engine to one
// remote server
type Proxy struct {
	sync.Mutex // guards the start/stop transitions

	log            *logger.L
	upstreamConfig *upstream.Config
	store          storage.TxStore
	maximumClients uint64
	limiter        *rate.Limiter

	// valid only while running
	listener   net.Listener
	port       int
	running    bool
	processes  *background.T
	clientWait sync.WaitGroup

	clientCount counter.Counter

	handlerLock sync.Mutex
	handlers    map[*handler]struct{}
	draining    bool // set during Stop so late sessions bail out
}

// New - create a stopped proxy
//
// maximumClients of zero selects a default; the store must not be
// nil
func New(upstreamConfig *upstream.Config, store storage.TxStore, maximumClients uint64) (*Proxy, error) {
	if nil == upstreamConfig || nil == store {
		return nil, fault.MissingParameters
	}
	if 0 == maximumClients {
		maximumClients = defaultMaximumClients
	}
	return &Proxy{
		log:            logger.New("proxy"),
		upstreamConfig: upstreamConfig,
		store:          store,
		maximumClients: maximumClients,
		limiter:        rate.NewLimiter(acceptRateLimit, acceptRateBurst),
		handlers:       make(map[*handler]struct{}),
	}, nil
}

// Start - bind the loopback listener and launch the accept loop
//
// idempotent: a second call returns the already bound port without
// creating another listener
func (p *Proxy) Start() (int, error) {
	p.Lock()
	defer p.Unlock()

	if p.running {
		return p.port, nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if nil != err {
		return 0, err
	}

	p.handlerLock.Lock()
	p.draining = false
	p.handlerLock.Unlock()

	p.listener = listener
	p.port = listener.Addr().(*net.TCPAddr).Port
	p.processes = background.Start(background.Processes{
		&acceptor{proxy: p, listener: listener},
	}, nil)
	p.running = true

	p.log.Infof("listening on 127.0.0.1:%d", p.port)
	return p.port, nil
}

// Stop - close the listener and all open client and upstream sockets
//
// safe to call when never started and safe to call repeatedly; a
// later Start succeeds again
func (p *Proxy) Stop() {
	p.Lock()
	defer p.Unlock()

	if !p.running {
		return
	}

	// closing the sockets unblocks every pending read; the draining
	// flag catches a session still dialing its upstream, which would
	// otherwise attach after this sweep and never be closed
	_ = p.listener.Close()

	p.handlerLock.Lock()
	p.draining = true
	for h := range p.handlers {
		h.close()
	}
	p.handlerLock.Unlock()

	p.processes.Stop()
	p.clientWait.Wait()

	p.listener = nil
	p.processes = nil
	p.port = 0
	p.running = false

	p.log.Info("stopped")
}

// attach - register a live session; refused while Stop is draining
func (p *Proxy) attach(h *handler) bool {
	p.handlerLock.Lock()
	defer p.handlerLock.Unlock()

	if p.draining {
		return false
	}
	p.handlers[h] = struct{}{}
	return true
}

func (p *Proxy) detach(h *handler) {
	p.handlerLock.Lock()
	delete(p.handlers, h)
	p.handlerLock.Unlock()
}

// acceptor - the single accept loop
type acceptor struct {
	proxy    *Proxy
	listener net.Listener
}

func (a *acceptor) Run(args interface{}, shutdown <-chan struct{}) {
	p := a.proxy
	for {
		conn, err := a.listener.Accept()
		if nil != err {
			// listener closed by Stop
			p.log.Debugf("accept terminated: %s", err)
			return
		}

		reservation := p.limiter.Reserve()
		if !reservation.OK() {
			_ = conn.Close()
			continue
		}
		// a short accept delay is preferable to refusing the client
		time.Sleep(reservation.Delay())

		if p.clientCount.Increment() > p.maximumClients {
			p.clientCount.Decrement()
			p.log.Warnf("connection limit %d reached", p.maximumClients)
			_ = conn.Close()
			continue
		}

		p.clientWait.Add(1)
		go p.serve(conn)
	}
}
