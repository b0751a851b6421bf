//go:build deadlock

// Package syncutil provides the mutex used for state shared with background
// tasks. Building with -tags=deadlock swaps in lock-order and timeout detection.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is a deadlock-detecting mutex.
type Mutex struct {
	deadlock.Mutex
}
