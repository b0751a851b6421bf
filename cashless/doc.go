// Package cashless emulates an MDB cashless payment reader (level 1) on top of
// a cp.Driver running in peripheral mode.
//
// The VMC drives the reader entirely through polling. Device.Run reads one
// frame at a time, feeds DATA payloads to HandleCommand and queues the
// resulting Outcome; the driver transmits it when the VMC addresses the
// reader again.
//
// A typical session:
//
//	VMC                     reader
//	RESET              ->   JUST_RESET (on the next POLL)
//	SETUP Config Data  ->   CONFIG_DATA
//	READER Enable      ->   ACK, session check opens the authorizer
//	POLL               ->   BEGIN_SESSION
//	VEND Request       ->   authorization starts in the background
//	POLL ...           ->   ACK while it is pending
//	POLL               ->   VEND_APPROVED or VEND_DENIED
//	VEND Success       ->   commit (blocking)
//	VEND Session Comp. ->   END_SESSION
//
// Payment authorization is the only work that leaves the processing
// goroutine. Its result is published by a compare-and-swap on the vend state,
// so a cancel, timeout or reset observed in the meantime always wins and a
// late approval is voided.
package cashless
