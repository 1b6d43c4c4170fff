// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package notifier_test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/electrum"
	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/notifier"
	"github.com/bitmark-inc/electrumproxy/upstream"
)

const testingDirName = "testing"

func TestMain(m *testing.M) {
	_ = os.RemoveAll(testingDirName)
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
	_ = os.RemoveAll(testingDirName)
	os.Exit(result)
}

// a scripted stand-in for a remote Electrum server
type testServer struct {
	sync.Mutex
	listener   net.Listener
	transcript []string
	handler    func(request electrum.Request, out *json.Encoder) bool
}

func newTestServer(t *testing.T, handler func(request electrum.Request, out *json.Encoder) bool) *testServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, err, "listen")

	s := &testServer{
		listener: listener,
		handler:  handler,
	}

	go func() {
		conn, err := listener.Accept()
		if nil != err {
			return
		}
		defer conn.Close()

		out := json.NewEncoder(conn)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var request electrum.Request
			if err := json.Unmarshal(scanner.Bytes(), &request); nil != err {
				continue
			}

			s.Lock()
			s.transcript = append(s.transcript, request.Method)
			s.Unlock()

			if electrum.MethodServerVersion == request.Method {
				_ = out.Encode(electrum.Response{
					ID:     request.ID,
					Result: json.RawMessage(`["TestServer 1.0","1.4"]`),
				})
				continue
			}
			if nil != s.handler && !s.handler(request, out) {
				return
			}
		}
	}()
	return s
}

func (s *testServer) methods() []string {
	s.Lock()
	defer s.Unlock()
	return append([]string{}, s.transcript...)
}

func (s *testServer) connect(t *testing.T) *upstream.Connection {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	numericPort, _ := strconv.Atoi(port)
	conn, err := upstream.New(&upstream.Config{
		Host:           "127.0.0.1",
		Port:           numericPort,
		RequestTimeout: 2 * time.Second,
	}, logger.New("test"))
	assert.Nil(t, err, "connect")
	return conn
}

func (s *testServer) stop() {
	_ = s.listener.Close()
}

// answer any subscription request with a null initial result
func subscriptionHandler(request electrum.Request, out *json.Encoder) bool {
	_ = out.Encode(electrum.Response{ID: request.ID, Result: json.RawMessage(`null`)})
	return true
}

func collectEvents(events <-chan interface{}, count int) []interface{} {
	collected := []interface{}{}
	timeout := time.After(2 * time.Second)
	for len(collected) < count {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			return collected
		}
	}
	return collected
}

func TestSubscriptionOrder(t *testing.T) {
	server := newTestServer(t, subscriptionHandler)
	defer server.stop()

	conn := server.connect(t)
	n := notifier.New(conn)
	defer n.Stop()

	err := n.StartSubscriptions([]string{"hash-a", "hash-b"})
	assert.Nil(t, err, "start")

	assert.Equal(t, []string{
		electrum.MethodServerVersion,
		electrum.MethodHeadersSubscribe,
		electrum.MethodScripthashSubscribe,
		electrum.MethodScripthashSubscribe,
	}, server.methods(), "wrong subscription order")

	// a second start on the same session must be refused
	err = n.StartSubscriptions(nil)
	assert.Equal(t, fault.AlreadyInitialised, err, "double start")
}

func TestNotificationClassification(t *testing.T) {
	server := newTestServer(t, func(request electrum.Request, out *json.Encoder) bool {
		_ = out.Encode(electrum.Response{ID: request.ID, Result: json.RawMessage(`null`)})
		if electrum.MethodScripthashSubscribe == request.Method {
			// subscriptions done: emit one push of each kind
			_ = out.Encode(map[string]interface{}{
				"method": electrum.MethodHeadersSubscribe,
				"params": []interface{}{map[string]interface{}{"height": 700001, "hex": "00ff"}},
			})
			_ = out.Encode(map[string]interface{}{
				"method": electrum.MethodScripthashSubscribe,
				"params": []interface{}{"hash-a", "status-1"},
			})
		}
		return true
	})
	defer server.stop()

	conn := server.connect(t)
	n := notifier.New(conn)
	defer n.Stop()

	events := n.Subscribe()
	err := n.StartSubscriptions([]string{"hash-a"})
	assert.Nil(t, err, "start")

	collected := collectEvents(events, 2)
	assert.Equal(t, 2, len(collected), "wrong event count")

	header, ok := collected[0].(electrum.NewBlockHeader)
	assert.True(t, ok, "wrong first event: %v", collected[0])
	assert.Equal(t, int64(700001), header.Height, "height")
	assert.Equal(t, "00ff", header.Header, "header hex")

	changed, ok := collected[1].(electrum.ScriptHashChanged)
	assert.True(t, ok, "wrong second event: %v", collected[1])
	assert.Equal(t, "hash-a", changed.ScriptHash, "script hash")
	assert.NotNil(t, changed.Status, "status missing")
	assert.Equal(t, "status-1", *changed.Status, "status")
}

func TestConnectionLostIsFinal(t *testing.T) {
	server := newTestServer(t, func(request electrum.Request, out *json.Encoder) bool {
		_ = out.Encode(electrum.Response{ID: request.ID, Result: json.RawMessage(`null`)})
		// drop the connection once the subscription is acknowledged
		return electrum.MethodHeadersSubscribe != request.Method
	})
	defer server.stop()

	conn := server.connect(t)
	n := notifier.New(conn)
	defer n.Stop()

	events := n.Subscribe()
	err := n.StartSubscriptions(nil)
	assert.Nil(t, err, "start")

	collected := collectEvents(events, 1)
	assert.Equal(t, 1, len(collected), "wrong event count")
	_, ok := collected[0].(electrum.ConnectionLost)
	assert.True(t, ok, "wrong final event: %v", collected[0])

	// the bus is released: the channel must be closed afterwards
	select {
	case _, open := <-events:
		assert.False(t, open, "events channel not closed")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestCheckForScriptHashChanges(t *testing.T) {
	server := newTestServer(t, func(request electrum.Request, out *json.Encoder) bool {
		scriptHash, _ := request.StringParam(0)
		result := json.RawMessage(`null`)
		if "hash-a" == scriptHash {
			result = json.RawMessage(`"status-1"`)
		}
		_ = out.Encode(electrum.Response{ID: request.ID, Result: result})
		return true
	})
	defer server.stop()

	conn := server.connect(t)
	defer conn.Close()
	n := notifier.New(conn)

	// nothing cached: always resync
	assert.True(t, n.CheckForScriptHashChanges(nil), "empty map")

	// all statuses match, a null server status equals an empty cache entry
	unchanged := map[string]string{
		"hash-a": "status-1",
		"hash-b": "",
	}
	assert.False(t, n.CheckForScriptHashChanges(unchanged), "unchanged")

	// one stale status
	changed := map[string]string{
		"hash-a": "status-0",
	}
	assert.True(t, n.CheckForScriptHashChanges(changed), "changed")
}

func TestCheckForScriptHashChangesQueryFailure(t *testing.T) {
	server := newTestServer(t, func(request electrum.Request, out *json.Encoder) bool {
		return false // drop the connection instead of answering
	})
	defer server.stop()

	conn := server.connect(t)
	defer conn.Close()
	n := notifier.New(conn)

	// a failed query must report a change so the caller resyncs
	assert.True(t, n.CheckForScriptHashChanges(map[string]string{"hash-a": "s"}), "query failure")
}
