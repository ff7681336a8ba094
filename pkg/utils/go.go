// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import (
	"github.com/rapidaai/interpreter-api/pkg/commons"
)

// Go runs fn on a new goroutine, recovering and logging any panic so a
// background task can never take the process down.
func Go(logger commons.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("recovered panic in background task: %v", r)
			}
		}()
		fn()
	}()
}
