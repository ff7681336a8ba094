// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import "time"

const maxReconnectDelay = 30 * time.Second

// ReconnectDelay returns the exponential backoff delay for the given attempt
// count: min(30s, 2^attempts × 1s). Attempts start at 0 for the first retry.
func ReconnectDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 2^attempts seconds, saturating well before overflow.
	if attempts > 5 {
		return maxReconnectDelay
	}
	delay := time.Duration(1<<uint(attempts)) * time.Second
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}
