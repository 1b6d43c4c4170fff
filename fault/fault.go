// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fault

// error base
type GenericError string

// to allow for different classes of errors
type ExistsError GenericError
type InvalidError GenericError
type NotFoundError GenericError
type ProcessError GenericError

// common errors - keep in alphabetic order
var (
	AlreadyInitialised     = ExistsError("already initialised")
	CertificateFingerprint = InvalidError("certificate fingerprint mismatch")
	ConnectionIsClosed     = ProcessError("connection is closed")
	InvalidIpAddress       = InvalidError("invalid IP Address")
	InvalidPortNumber      = InvalidError("invalid port number")
	MissingParameters      = InvalidError("missing parameters")
	MissingPinStore        = InvalidError("SSL to a clearnet host requires a certificate pin store")
	OnionRequiresProxy     = InvalidError("onion host requires the SOCKS proxy")
	RequestInFlight        = ExistsError("request id already in flight")
	RequestTimeout         = ProcessError("request timed out")
	TransactionNotFound    = NotFoundError("transaction not found")
)

// the error interface base method
func (e GenericError) Error() string { return string(e) }

// the error interface methods
func (e ExistsError) Error() string   { return string(e) }
func (e InvalidError) Error() string  { return string(e) }
func (e NotFoundError) Error() string { return string(e) }
func (e ProcessError) Error() string  { return string(e) }
