// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package upstream

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/electrum"
	"github.com/bitmark-inc/electrumproxy/fault"
)

// line scanner limits; a verbose transaction with inline previous
// outputs can run to megabytes
const (
	initialLineBuffer = 64 * 1024
	maximumLineLength = 16 * 1024 * 1024

	notificationQueueSize = 100
)

// Connection - an established, handshaken server connection
type Connection struct {
	log            *logger.L
	conn           net.Conn
	requestTimeout time.Duration

	writeLock sync.Mutex

	pendingLock sync.Mutex
	pending     map[string]chan electrum.Response

	notifications chan []byte

	nextID uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// New - dial the remote server and perform the server.version
// handshake
//
// any failure closes the socket and is returned; the caller decides
// whether to create a replacement connection
func New(cfg *Config, log *logger.L) (*Connection, error) {

	if err := cfg.verify(); nil != err {
		return nil, err
	}

	conn, err := dial(cfg, log)
	if nil != err {
		return nil, err
	}

	c := &Connection{
		log:            log,
		conn:           conn,
		requestTimeout: cfg.requestTimeout(),
		pending:        make(map[string]chan electrum.Response),
		notifications:  make(chan []byte, notificationQueueSize),
		closed:         make(chan struct{}),
	}

	go c.receive()

	// identify before any functional request; the reply content is
	// irrelevant, receiving it proves the line works
	_, err = c.Call(electrum.MethodServerVersion,
		[]interface{}{electrum.ClientName, electrum.ProtocolVersion})
	if nil != err {
		c.Close()
		return nil, err
	}

	return c, nil
}

// Close - shut the socket, unblocking any pending reads
//
// reentrant safe
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// Notifications - raw server push lines
//
// closed when the connection terminates; a slow consumer loses
// overflowing pushes rather than stalling response handling
func (c *Connection) Notifications() <-chan []byte {
	return c.notifications
}

// Transmit - send a request and wait for the response with the
// matching id
//
// responses are paired strictly by id, out of order arrival is fine
func (c *Connection) Transmit(request electrum.Request) (electrum.Response, error) {

	if 0 == len(request.ID) {
		return electrum.Response{}, fault.MissingParameters
	}

	key := string(request.ID)
	reply := make(chan electrum.Response, 1)

	c.pendingLock.Lock()
	if _, ok := c.pending[key]; ok {
		c.pendingLock.Unlock()
		return electrum.Response{}, fault.RequestInFlight
	}
	c.pending[key] = reply
	c.pendingLock.Unlock()

	data, err := json.Marshal(request)
	if nil == err {
		err = c.send(data)
	}
	if nil != err {
		c.unregister(key)
		return electrum.Response{}, err
	}

	select {
	case response := <-reply:
		return response, nil
	case <-c.closed:
		c.unregister(key)
		return electrum.Response{}, fault.ConnectionIsClosed
	case <-time.After(c.requestTimeout):
		c.unregister(key)
		return electrum.Response{}, fault.RequestTimeout
	}
}

// Call - request with an internally generated id, unwrapping the
// result
func (c *Connection) Call(method string, params interface{}) (json.RawMessage, error) {

	id := atomic.AddUint64(&c.nextID, 1)

	request := electrum.Request{
		ID:     json.RawMessage(strconv.FormatUint(id, 10)),
		Method: method,
	}
	if nil != params {
		data, err := json.Marshal(params)
		if nil != err {
			return nil, err
		}
		request.Params = data
	}

	response, err := c.Transmit(request)
	if nil != err {
		return nil, err
	}
	if nil != response.Error {
		return nil, response.Error
	}
	return response.Result, nil
}

func (c *Connection) unregister(key string) {
	c.pendingLock.Lock()
	delete(c.pending, key)
	c.pendingLock.Unlock()
}

// one JSON object per line, flushed per message
func (c *Connection) send(line []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.requestTimeout))
	_, err := c.conn.Write(append(line, '\n'))
	return err
}

// receive - the single socket reader
//
// demultiplexes response lines to their waiting requests and queues
// push lines; exits on end of stream or socket error
func (c *Connection) receive() {

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maximumLineLength)

	for scanner.Scan() {
		line := scanner.Bytes()

		var message struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
			Error  *electrum.Error `json:"error"`
		}
		if err := json.Unmarshal(line, &message); nil != err {
			c.log.Errorf("receive: invalid line: %s", err)
			continue
		}

		// push message: method without a client originated id
		if "" != message.Method &&
			(0 == len(message.ID) || "null" == string(message.ID)) {
			push := make([]byte, len(line))
			copy(push, line)
			select {
			case c.notifications <- push:
			default:
				c.log.Warnf("receive: dropping push: %s", message.Method)
			}
			continue
		}

		key := string(message.ID)
		c.pendingLock.Lock()
		reply, ok := c.pending[key]
		delete(c.pending, key)
		c.pendingLock.Unlock()

		if !ok {
			c.log.Warnf("receive: no pending request for id: %s", key)
			continue
		}
		reply <- electrum.Response{
			ID:     message.ID,
			Result: message.Result,
			Error:  message.Error,
		}
	}

	if err := scanner.Err(); nil != err {
		c.log.Debugf("receive: terminated: %s", err)
	}

	c.Close()
	close(c.notifications)
}
