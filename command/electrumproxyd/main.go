// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/electrumproxy/configuration"
	"github.com/bitmark-inc/electrumproxy/electrum"
	"github.com/bitmark-inc/electrumproxy/notifier"
	"github.com/bitmark-inc/electrumproxy/proxy"
	"github.com/bitmark-inc/electrumproxy/storage"
	"github.com/bitmark-inc/electrumproxy/upstream"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero" // do not change this value

// main program
func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "verbose", HasArg: getoptions.NO_ARGUMENT, Short: 'v'},
		{Long: "quiet", HasArg: getoptions.NO_ARGUMENT, Short: 'q'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "config-file", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'c'},
	}

	program, options, arguments, err := getoptions.GetOS(flags)
	if nil != err {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["version"]) > 0 {
		fmt.Printf("%s: version: %s\n", program, version)
		return
	}

	if len(options["help"]) > 0 || len(arguments) > 0 {
		exitwithstatus.Message("usage: %s [--help] [--quiet] [--version] --config-file=FILE", program)
	}

	if 1 != len(options["config-file"]) {
		exitwithstatus.Message("%s: only one config-file option is required, %d were detected", program, len(options["config-file"]))
	}

	// read options and parse the configuration file
	configurationFile := options["config-file"][0]
	theConfiguration, err := configuration.GetConfiguration(configurationFile)
	if nil != err {
		exitwithstatus.Message("%s: failed to read configuration from: %q  error: %s", program, configurationFile, err)
	}

	// start logging
	if err = logger.Initialise(theConfiguration.Logging); nil != err {
		exitwithstatus.Message("%s: logger setup failed with error: %s", program, err)
	}
	defer logger.Finalise()

	// create a logger channel for the main program
	log := logger.New("main")
	defer log.Info("finished")
	log.Info("starting…")
	log.Infof("version: %s", version)

	// ------------------
	// start of real main
	// ------------------

	// optional PID file
	// use if not running under a supervisor program like daemon(8)
	if "" != theConfiguration.PidFile {
		lockFile, err := os.OpenFile(theConfiguration.PidFile, os.O_WRONLY|os.O_EXCL|os.O_CREATE, os.ModeExclusive|0600)
		if err != nil {
			if os.IsExist(err) {
				exitwithstatus.Message("%s: another instance is already running", program)
			}
			exitwithstatus.Message("%s: PID file: %q creation failed, error: %s", program, theConfiguration.PidFile, err)
		}
		fmt.Fprintf(lockFile, "%d\n", os.Getpid())
		lockFile.Close()
		defer os.Remove(theConfiguration.PidFile)
	}

	// transaction cache and certificate pin storage
	var store storage.Store
	if "" == theConfiguration.Cache.Directory {
		log.Info("cache: in-memory only")
		store = storage.NewMemory()
	} else {
		log.Infof("cache: %q", theConfiguration.Cache.Directory)
		store, err = storage.NewLevelDB(theConfiguration.Cache.Directory)
		if nil != err {
			log.Criticalf("cache initialise error: %s", err)
			exitwithstatus.Message("cache initialise error: %s", err)
		}
	}
	defer store.Close()

	upstreamConfig := &upstream.Config{
		Host:         theConfiguration.Server.Host,
		Port:         theConfiguration.Server.Port,
		UseSSL:       theConfiguration.Server.UseSSL,
		UseTor:       theConfiguration.Server.UseTor,
		SocksAddress: theConfiguration.Server.SocksAddress,
		Pins:         store,
	}
	log.Infof("server: %s:%d  ssl: %v  tor: %v",
		upstreamConfig.Host, upstreamConfig.Port,
		upstreamConfig.UseSSL, upstreamConfig.UseTor)

	// the loopback bridge for the wallet engine
	bridge, err := proxy.New(upstreamConfig, store, uint64(theConfiguration.Proxy.MaximumClients))
	if nil != err {
		log.Criticalf("proxy create error: %s", err)
		exitwithstatus.Message("proxy create error: %s", err)
	}
	port, err := bridge.Start()
	if nil != err {
		log.Criticalf("proxy start error: %s", err)
		exitwithstatus.Message("proxy start error: %s", err)
	}
	defer bridge.Stop()

	// the wallet engine reads this line to find the bridge
	fmt.Printf("listening on 127.0.0.1:%d\n", port)

	// a dedicated connection for server push notifications
	conn, err := upstream.New(upstreamConfig, log)
	if nil != err {
		log.Criticalf("upstream connect error: %s", err)
		exitwithstatus.Message("upstream connect error: %s", err)
	}
	events := notifier.New(conn)
	defer events.Stop()

	eventChannel := events.Subscribe()
	if err := events.StartSubscriptions(nil); nil != err {
		log.Criticalf("subscription error: %s", err)
		exitwithstatus.Message("subscription error: %s", err)
	}
	go logEvents(log, eventChannel)

	// wait for CTRL-C before shutting down to allow manual testing
	if 0 == len(options["quiet"]) {
		fmt.Printf("\n\nWaiting for CTRL-C (SIGINT) or 'kill <pid>' (SIGTERM)…")
	}

	// turn Signals into channel messages
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received signal: %v", sig)
	if 0 == len(options["quiet"]) {
		fmt.Printf("\nreceived signal: %v\n", sig)
		fmt.Printf("\nshutting down…\n")
	}

	log.Info("shutting down…")
}

// logEvents - record server pushes until the session ends
func logEvents(log *logger.L, events <-chan interface{}) {
	for event := range events {
		switch e := event.(type) {
		case electrum.NewBlockHeader:
			log.Infof("new block: height: %d", e.Height)
		case electrum.ScriptHashChanged:
			log.Infof("script hash changed: %s", e.ScriptHash)
		case electrum.ConnectionLost:
			log.Warn("server connection lost")
		default:
			log.Debugf("event: %v", event)
		}
	}
}
