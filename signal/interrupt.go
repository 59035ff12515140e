// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signal

import (
	"os"
	"os/signal"
	"sync"
)

// interruptSignals defines the default signals to catch in order to do a
// graceful shutdown.
var interruptSignals = []os.Signal{os.Interrupt}

var (
	interruptChannel       chan os.Signal
	shutdownRequestChannel = make(chan struct{})

	interruptHandlersDone = make(chan struct{})

	simulateInterruptChannel = make(chan struct{}, 1)

	once               sync.Once
	interruptCallbacks []func()

	addHandlerChannel = make(chan func())
)

// mainInterruptHandler listens for the initial interrupt signal, as well as
// any subsequent signals received while shutdown handlers are running. It
// also registers itself as the handler for calls to AddInterruptHandler so
// that new handlers can be added before or after the initial signal has
// been received.
func mainInterruptHandler() {
	isShutdown := false
	defer close(interruptHandlersDone)

	for {
		select {
		case sig := <-interruptChannel:
			if !isShutdown {
				log.Infof("received signal (%s). Shutting down...", sig)
				isShutdown = true
			} else {
				log.Infof("received signal (%s). Already shutting down...", sig)
			}

		case <-simulateInterruptChannel:
			if !isShutdown {
				log.Infof("shutdown requested. Shutting down...")
				isShutdown = true
			} else {
				log.Infof("shutdown requested. Already shutting down...")
			}

		case handler := <-addHandlerChannel:
			if isShutdown {
				handler()
			} else {
				interruptCallbacks = append(interruptCallbacks, handler)
			}
			continue

		case <-shutdownRequestChannel:
			return
		}

		if isShutdown {
			for _, callback := range interruptCallbacks {
				callback()
			}
			close(shutdownRequestChannel)
			return
		}
	}
}

// AddInterruptHandler adds a handler to call when a SIGINT (Ctrl+C) is
// received; SIGTERM is not caught. Handlers run in the order they were added, and run
// immediately if the interrupt has already been triggered.
func AddInterruptHandler(handler func()) {
	once.Do(func() {
		interruptChannel = make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)
		go mainInterruptHandler()
	})
	addHandlerChannel <- handler
}

// InterruptListener returns a channel that is closed once either a
// registered interrupt signal or a manual shutdown request is received. It
// is safe to call multiple times and from multiple goroutines.
func InterruptListener() <-chan struct{} {
	once.Do(func() {
		interruptChannel = make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)
		go mainInterruptHandler()
	})
	return interruptHandlersDone
}

// InterruptRequested returns true when the channel returned by
// InterruptListener has already been closed.
func InterruptRequested() bool {
	select {
	case <-interruptHandlersDone:
		return true
	default:
		return false
	}
}

// RequestShutdown programmatically triggers the same shutdown path as an
// interrupt signal, for use by callers (such as RPC handlers) that need to
// stop the process without sending it a real signal.
func RequestShutdown() {
	once.Do(func() {
		interruptChannel = make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)
		go mainInterruptHandler()
	})
	select {
	case simulateInterruptChannel <- struct{}{}:
	default:
	}
}
