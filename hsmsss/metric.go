package hsmsss

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for a connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// DataMsgSendCount indicates the number of data messages sent.
	DataMsgSendCount atomic.Uint64
	// DataMsgRecvCount indicates the number of data messages received.
	DataMsgRecvCount atomic.Uint64
	// DataMsgErrCount indicates the number of data messages that failed to send or decode.
	DataMsgErrCount atomic.Uint64
	// DataMsgInflightCount indicates the number of primary messages waiting for a reply.
	DataMsgInflightCount atomic.Int64

	// ControlMsgSendCount indicates the number of control messages sent.
	ControlMsgSendCount atomic.Uint64
	// ControlMsgRecvCount indicates the number of control messages received.
	ControlMsgRecvCount atomic.Uint64

	// LinktestSendCount indicates the number of Linktest.req sent.
	LinktestSendCount atomic.Uint64
	// LinktestErrCount indicates the number of failed linktests.
	LinktestErrCount atomic.Uint64

	// T3TimeoutCount indicates the number of reply timeouts.
	T3TimeoutCount atomic.Uint64
	// RejectSendCount indicates the number of Reject.req sent.
	RejectSendCount atomic.Uint64

	// ConnRetryGauge indicates the number of connection retries since the last success.
	ConnRetryGauge atomic.Uint32
}

func (m *ConnectionMetrics) incDataMsgSendCount() { m.DataMsgSendCount.Add(1) }

func (m *ConnectionMetrics) incDataMsgRecvCount() { m.DataMsgRecvCount.Add(1) }

func (m *ConnectionMetrics) incDataMsgErrCount() { m.DataMsgErrCount.Add(1) }

func (m *ConnectionMetrics) incDataMsgInflightCount() { m.DataMsgInflightCount.Add(1) }

func (m *ConnectionMetrics) decDataMsgInflightCount() { m.DataMsgInflightCount.Add(-1) }

func (m *ConnectionMetrics) incControlMsgSendCount() { m.ControlMsgSendCount.Add(1) }

func (m *ConnectionMetrics) incControlMsgRecvCount() { m.ControlMsgRecvCount.Add(1) }

func (m *ConnectionMetrics) incLinktestSendCount() { m.LinktestSendCount.Add(1) }

func (m *ConnectionMetrics) incLinktestErrCount() { m.LinktestErrCount.Add(1) }

func (m *ConnectionMetrics) incT3TimeoutCount() { m.T3TimeoutCount.Add(1) }

func (m *ConnectionMetrics) incRejectSendCount() { m.RejectSendCount.Add(1) }

func (m *ConnectionMetrics) incConnRetryGauge() { m.ConnRetryGauge.Add(1) }

func (m *ConnectionMetrics) resetConnRetryGauge() { m.ConnRetryGauge.Store(0) }
