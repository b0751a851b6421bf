package cashless

import (
	"fmt"
	"sync/atomic"
)

// ReaderState is the reader's link state towards the VMC.
type ReaderState int32

const (
	ReaderInactive ReaderState = iota
	// ReaderResetReceived marks an MDB bus reset that the next POLL completes.
	ReaderResetReceived
	ReaderReset
	ReaderDisabled
	ReaderEnabled
	ReaderSessionIdle
	ReaderVend
)

var readerStateNames = [...]string{
	ReaderInactive:      "Inactive",
	ReaderResetReceived: "ResetReceived",
	ReaderReset:         "Reset",
	ReaderDisabled:      "Disabled",
	ReaderEnabled:       "Enabled",
	ReaderSessionIdle:   "SessionIdle",
	ReaderVend:          "Vend",
}

func (s ReaderState) String() string {
	if s >= 0 && int(s) < len(readerStateNames) {
		return readerStateNames[s]
	}

	return fmt.Sprintf("ReaderState(%d)", int32(s))
}

// VendState is the progress of the current vend session.
type VendState int32

const (
	VendIdle VendState = iota
	VendCardSwiped
	VendSessionBegun
	VendRequested
	VendApproved
	VendCommitted
	VendDenied
	// VendAwaitResult is held while a commit or rollback is in flight.
	VendAwaitResult
	VendWaitForNextCommand
)

var vendStateNames = [...]string{
	VendIdle:               "Idle",
	VendCardSwiped:         "CardSwiped",
	VendSessionBegun:       "SessionBegun",
	VendRequested:          "VendRequested",
	VendApproved:           "VendApproved",
	VendCommitted:          "VendCommitted",
	VendDenied:             "VendDenied",
	VendAwaitResult:        "AwaitVendResult",
	VendWaitForNextCommand: "WaitForNextCommand",
}

func (s VendState) String() string {
	if s >= 0 && int(s) < len(vendStateNames) {
		return vendStateNames[s]
	}

	return fmt.Sprintf("VendState(%d)", int32(s))
}

type atomicReaderState struct {
	state atomic.Int32
}

func (st *atomicReaderState) Get() ReaderState {
	return ReaderState(st.state.Load())
}

// Set stores state and returns the previous one.
func (st *atomicReaderState) Set(state ReaderState) ReaderState {
	return ReaderState(st.state.Swap(int32(state)))
}

// atomicVendState is the slot shared with the authorization task.
type atomicVendState struct {
	state atomic.Int32
}

func (st *atomicVendState) Get() VendState {
	return VendState(st.state.Load())
}

// Set stores state and returns the previous one.
func (st *atomicVendState) Set(state VendState) VendState {
	return VendState(st.state.Swap(int32(state)))
}

func (st *atomicVendState) CompareAndSwap(old, state VendState) bool {
	return st.state.CompareAndSwap(int32(old), int32(state))
}
