// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package upstream

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/btcsuite/go-socks/socks"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/storage"
	"github.com/bitmark-inc/electrumproxy/tofu"
	"github.com/bitmark-inc/electrumproxy/util"
)

// default timeouts; Tor circuits are slow to build so those paths
// get considerably longer limits
const (
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
	torConnectTimeout     = 45 * time.Second
	torRequestTimeout     = 90 * time.Second
)

// Config - connection parameters for one remote server
type Config struct {
	Host           string
	Port           int
	UseSSL         bool
	UseTor         bool
	SocksAddress   string           // local SOCKS5 end point, e.g. 127.0.0.1:9050
	ConnectTimeout time.Duration    // zero selects a default
	RequestTimeout time.Duration    // zero selects a default
	Pins           storage.PinStore // required for SSL to a clearnet host
}

func (cfg *Config) connectTimeout() time.Duration {
	if 0 != cfg.ConnectTimeout {
		return cfg.ConnectTimeout
	}
	if cfg.UseTor {
		return torConnectTimeout
	}
	return defaultConnectTimeout
}

func (cfg *Config) requestTimeout() time.Duration {
	if 0 != cfg.RequestTimeout {
		return cfg.RequestTimeout
	}
	if cfg.UseTor {
		return torRequestTimeout
	}
	return defaultRequestTimeout
}

// verify - detect configuration errors before any dialing
func (cfg *Config) verify() error {
	if "" == cfg.Host || cfg.Port < 1 || cfg.Port > 65535 {
		return fault.MissingParameters
	}
	if util.IsOnionHost(cfg.Host) && !cfg.UseTor {
		return fault.OnionRequiresProxy
	}
	if cfg.UseTor && "" == cfg.SocksAddress {
		return fault.MissingParameters
	}
	if cfg.UseSSL && !util.IsOnionHost(cfg.Host) && nil == cfg.Pins {
		return fault.MissingPinStore
	}
	return nil
}

// dial - open the socket, optionally through SOCKS, optionally TLS
func dial(cfg *Config, log *logger.L) (net.Conn, error) {

	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	connectTimeout := cfg.connectTimeout()

	var conn net.Conn
	var err error

	if cfg.UseTor {
		// the host name is passed to the proxy unresolved; local
		// DNS resolution would be a privacy leak on clearnet and
		// is impossible for onion addresses
		proxy := &socks.Proxy{Addr: cfg.SocksAddress}
		conn, err = proxy.DialTimeout("tcp", address, connectTimeout)
	} else {
		conn, err = net.DialTimeout("tcp", address, connectTimeout)
	}
	if nil != err {
		return nil, err
	}

	if !cfg.UseSSL {
		return conn, nil
	}

	var tlsConfig *tls.Config
	if util.IsOnionHost(cfg.Host) {
		tlsConfig = tofu.Permissive(cfg.Host)
	} else {
		tlsConfig, err = tofu.NewTLSConfig(cfg.Host, cfg.Pins, log)
		if nil != err {
			_ = conn.Close()
			return nil, err
		}
	}

	tlsConn := tls.Client(conn, tlsConfig)
	_ = tlsConn.SetDeadline(time.Now().Add(connectTimeout))
	if err := tlsConn.Handshake(); nil != err {
		_ = tlsConn.Close()
		return nil, err
	}
	_ = tlsConn.SetDeadline(time.Time{})
	return tlsConn, nil
}
