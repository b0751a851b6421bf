package cp

import (
	"sync/atomic"
)

// DriverMetrics contains atomic counters for a Driver.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type DriverMetrics struct {
	// FrameSendCount indicates the number of frames written.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of frames decoded.
	FrameRecvCount atomic.Uint64
	// DecodeErrCount indicates the number of malformed frames.
	DecodeErrCount atomic.Uint64
	// NakRecvCount indicates the number of NAKs received.
	NakRecvCount atomic.Uint64
	// TimeoutCount indicates the number of reads that timed out.
	TimeoutCount atomic.Uint64
	// RetryCount indicates the number of reply retries.
	RetryCount atomic.Uint64
	// BusResetCount indicates the number of MDB_RESET frames received.
	BusResetCount atomic.Uint64
	// QueuedCount indicates the number of frames currently queued.
	QueuedCount atomic.Int64
}

func (m *DriverMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *DriverMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *DriverMetrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}

func (m *DriverMetrics) incNakRecvCount() {
	m.NakRecvCount.Add(1)
}

func (m *DriverMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *DriverMetrics) incRetryCount() {
	m.RetryCount.Add(1)
}

func (m *DriverMetrics) incBusResetCount() {
	m.BusResetCount.Add(1)
}

func (m *DriverMetrics) setQueuedCount(n int) {
	m.QueuedCount.Store(int64(n))
}
