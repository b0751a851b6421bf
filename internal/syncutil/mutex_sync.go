//go:build !deadlock

// Package syncutil provides the mutex used for state shared with background
// tasks. Building with -tags=deadlock swaps in lock-order and timeout detection.
package syncutil

import "sync"

// Mutex is a plain sync.Mutex in regular builds.
//
//nolint:gocritic // embedding exposes Lock/Unlock/TryLock directly
type Mutex struct {
	sync.Mutex
}
