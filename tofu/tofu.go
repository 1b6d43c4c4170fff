// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package tofu - trust-on-first-use certificate validation
//
// The certificate presented on the first successful connection to a
// host is pinned by its SHA256 fingerprint; any later connection
// presenting a different certificate for the same host is rejected.
// Electrum servers almost universally use self signed certificates,
// so chain validation against a CA list is useless here.
package tofu

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/storage"
	"github.com/bitmark-inc/electrumproxy/util"
)

// NewTLSConfig - a TLS client configuration pinning host to its
// first seen certificate
//
// the pins store must not be nil for a clearnet host
func NewTLSConfig(host string, pins storage.PinStore, log *logger.L) (*tls.Config, error) {

	if nil == pins {
		return nil, fault.MissingPinStore
	}

	verify := func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		if 0 == len(rawCerts) {
			return fault.MissingParameters
		}

		fingerprint := util.Fingerprint(rawCerts[0])

		pinned, ok := pins.Pin(host)
		if !ok {
			if nil != log {
				log.Infof("pinning %s: SHA-256 fingerprint: %x", host, fingerprint)
			}
			pins.SetPin(host, fingerprint)
			return nil
		}
		if pinned != fingerprint {
			if nil != log {
				log.Errorf("certificate changed for %s: pinned: %x  presented: %x",
					host, pinned, fingerprint)
			}
			return fault.CertificateFingerprint
		}
		return nil
	}

	// chain verification is disabled: the pin comparison above is
	// the whole trust decision
	return &tls.Config{
		ServerName:            host,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verify,
	}, nil
}

// Permissive - accept any certificate
//
// only for onion hosts, where the transport itself authenticates the
// end point
func Permissive(host string) *tls.Config {
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true,
	}
}
