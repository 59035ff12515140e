// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"github.com/latticenet/latticenode/config"
	"github.com/latticenet/latticenode/logger"
	"github.com/latticenet/latticenode/signal"
)

// latticenodedMain is the real entry point for the daemon. It is
// separated from main only so that deferred cleanups run before the
// process exits, mirroring the teacher's own kaspadMain split.
func latticenodedMain() error {
	if err := config.LoadAndSetActiveConfig(); err != nil {
		return err
	}
	cfg := config.ActiveConfig()

	level, _ := logger.LevelFromString(cfg.DebugLevel)
	logFile := filepath.Join(cfg.LogDir, "latticenoded.log")
	if err := logger.Backend().AddLogFile(logFile, level); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if err := logger.Backend().Run(); err != nil {
		return fmt.Errorf("failed to start logging backend: %w", err)
	}
	defer logger.Backend().Close()

	interrupt := signal.InterruptListener()

	n, err := newNode(interrupt)
	if err != nil {
		log.Errorf("unable to start node: %s", err)
		return err
	}
	defer func() {
		n.stop()
		n.WaitForShutdown()
	}()
	n.start()

	<-interrupt
	return nil
}

func main() {
	if err := latticenodedMain(); err != nil {
		os.Exit(1)
	}
}
