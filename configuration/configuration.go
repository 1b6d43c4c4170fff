// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package configuration - Lua based configuration for the proxy daemon
package configuration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/fault"
	"github.com/bitmark-inc/electrumproxy/util"
)

// basic defaults (directories and files are relative to the
// "data_directory" from the configuration file)
const (
	defaultDataDirectory = "" // this will error; use "." for the same directory as the config file

	defaultCacheDirectory = "cache"

	defaultLogDirectory = "log"
	defaultLogFile      = "electrumproxy.log"
	defaultLogCount     = 10          // number of log files retained
	defaultLogSize      = 1024 * 1024 // rotate when <logfile> exceeds this size

	defaultProxyClients = 10

	defaultElectrumPort    = 50001
	defaultElectrumSSLPort = 50002
)

// LoglevelMap - to hold log levels
type LoglevelMap map[string]string

var defaultLogLevels = LoglevelMap{
	logger.DefaultTag: "error",
}

// ServerType - the remote Electrum server to connect to
type ServerType struct {
	Host         string `gluamapper:"host" json:"host"`
	Port         int    `gluamapper:"port" json:"port"`
	UseSSL       bool   `gluamapper:"use_ssl" json:"use_ssl"`
	UseTor       bool   `gluamapper:"use_tor" json:"use_tor"`
	SocksAddress string `gluamapper:"socks_address" json:"socks_address"`
}

// CacheType - the local transaction cache
//
// an empty directory keeps all data in memory only
type CacheType struct {
	Directory string `gluamapper:"directory" json:"directory"`
}

// ProxyType - the loopback bridge
type ProxyType struct {
	MaximumClients int `gluamapper:"maximum_clients" json:"maximum_clients"`
}

// Configuration - the full configuration file layout
type Configuration struct {
	DataDirectory string               `gluamapper:"data_directory" json:"data_directory"`
	PidFile       string               `gluamapper:"pidfile" json:"pidfile"`
	Server        ServerType           `gluamapper:"server" json:"server"`
	Cache         CacheType            `gluamapper:"cache" json:"cache"`
	Proxy         ProxyType            `gluamapper:"proxy" json:"proxy"`
	Logging       logger.Configuration `gluamapper:"logging" json:"logging"`
}

// GetConfiguration - read, decode and verify the configuration
func GetConfiguration(configurationFileName string) (*Configuration, error) {

	configurationFileName, err := filepath.Abs(filepath.Clean(configurationFileName))
	if nil != err {
		return nil, err
	}

	// absolute path to the main directory
	dataDirectory, _ := filepath.Split(configurationFileName)

	options := &Configuration{

		DataDirectory: defaultDataDirectory,
		PidFile:       "", // no PidFile by default

		Server: ServerType{
			Port: 0, // selected after parse since it depends on use_ssl
		},

		Cache: CacheType{
			Directory: defaultCacheDirectory,
		},

		Proxy: ProxyType{
			MaximumClients: defaultProxyClients,
		},

		Logging: logger.Configuration{
			Directory: defaultLogDirectory,
			File:      defaultLogFile,
			Size:      defaultLogSize,
			Count:     defaultLogCount,
			Levels:    defaultLogLevels,
		},
	}

	if err := ParseConfigurationFile(configurationFileName, options); nil != err {
		return nil, err
	}

	// server checks
	options.Server.Host = strings.ToLower(strings.TrimSpace(options.Server.Host))
	if "" == options.Server.Host {
		return nil, fault.MissingParameters
	}
	if 0 == options.Server.Port {
		if options.Server.UseSSL {
			options.Server.Port = defaultElectrumSSLPort
		} else {
			options.Server.Port = defaultElectrumPort
		}
	}
	if options.Server.Port < 1 || options.Server.Port > 65535 {
		return nil, fault.InvalidPortNumber
	}
	if util.IsOnionHost(options.Server.Host) && !options.Server.UseTor {
		return nil, fault.OnionRequiresProxy
	}
	if options.Server.UseTor {
		if "" == options.Server.SocksAddress {
			return nil, fault.MissingParameters
		}
		// the SOCKS end point is a host:port; a host name is kept
		// unresolved for the proxy itself to look up
		socksAddress, err := util.CanonicalHostPort(options.Server.SocksAddress)
		if nil != err {
			return nil, err
		}
		options.Server.SocksAddress = socksAddress
	}

	if options.Proxy.MaximumClients < 0 {
		return nil, fault.MissingParameters
	}

	// ensure absolute data directory
	if "" == options.DataDirectory || "~" == options.DataDirectory {
		return nil, fmt.Errorf("path: %q is not a valid directory", options.DataDirectory)
	} else if "." == options.DataDirectory {
		options.DataDirectory = dataDirectory // same directory as the configuration file
	} else {
		options.DataDirectory = filepath.Clean(options.DataDirectory)
	}

	// this directory must exist - i.e. must be created prior to running
	fileInfo, err := os.Stat(options.DataDirectory)
	if nil != err {
		return nil, err
	}
	if !fileInfo.IsDir() {
		return nil, fmt.Errorf("path: %q is not a directory", options.DataDirectory)
	}

	// optional absolute paths i.e. blank or an absolute path
	if "" != options.PidFile {
		options.PidFile = util.EnsureAbsolute(options.DataDirectory, options.PidFile)
	}

	// make absolute and create directories if they do not already exist
	for _, d := range []*string{
		&options.Cache.Directory,
		&options.Logging.Directory,
	} {
		if "" == *d {
			continue // an empty cache directory selects the in-memory store
		}
		*d = util.EnsureAbsolute(options.DataDirectory, *d)
		if err := util.EnsureDirectoryExists(*d); nil != err {
			return nil, err
		}
	}

	// fail if the log file is not a simple file name
	switch filepath.Dir(options.Logging.File) {
	case "", ".":
	default:
		return nil, fmt.Errorf("files: %q is not plain name", options.Logging.File)
	}

	// done
	return options, nil
}
