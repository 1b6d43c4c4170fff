// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"net"
	"strconv"
	"strings"

	"github.com/bitmark-inc/electrumproxy/fault"
)

// CanonicalHostPort - make a host:port canonical
//
// unlike an IP:Port canonicalisation this must keep host names
// intact: an onion address can only be resolved by the far end of a
// SOCKS connection and a clearnet name is deliberately left for the
// proxy to resolve
//
// examples:
//   host name:  electrum.example.com:50002
//   onion:      duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion:50001
//   IPv4:       127.0.0.1:50001
//   IPv6:       [::1]:50001
func CanonicalHostPort(hostPort string) (string, error) {

	host, port, err := net.SplitHostPort(hostPort)
	if nil != err {
		return "", err
	}

	host = strings.Trim(host, " ")
	if "" == host {
		return "", fault.InvalidIpAddress
	}

	numericPort, err := strconv.Atoi(strings.Trim(port, " "))
	if nil != err {
		return "", err
	}
	if numericPort < 1 || numericPort > 65535 {
		return "", fault.InvalidPortNumber
	}

	IP := net.ParseIP(host)
	if nil == IP {
		// host name
		return strings.ToLower(host) + ":" + strconv.Itoa(numericPort), nil
	}
	if nil != IP.To4() {
		return IP.String() + ":" + strconv.Itoa(numericPort), nil
	}
	return "[" + IP.String() + "]:" + strconv.Itoa(numericPort), nil
}

// IsOnionHost - detect a Tor hidden service host name
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), ".onion")
}
