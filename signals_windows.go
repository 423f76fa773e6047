// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

//go:build windows

package main

import (
	"github.com/hotcirc/hotcirc/app"
	"github.com/hotcirc/hotcirc/pkg/logger"
)

// setupDebugSignalHandlers is a no-op on Windows; SIGUSR1 and SIGUSR2 do not
// exist there. Use the log output and the metrics endpoint instead.
func setupDebugSignalHandlers(_ *app.App) {
	logger.Debug().Msg("Debug signal handlers not available on Windows")
}
