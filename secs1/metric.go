package secs1

import (
	"sync/atomic"
)

// ConnectionMetrics contains atomic metrics for a SECS-I connection.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ConnectionMetrics struct {
	// BlockSendCount indicates the number of blocks sent and acknowledged.
	BlockSendCount atomic.Uint64
	// BlockRecvCount indicates the number of valid blocks received.
	BlockRecvCount atomic.Uint64
	// BlockRetryCount indicates the number of ENQ or block retransmissions.
	BlockRetryCount atomic.Uint64
	// NakSendCount indicates the number of NAKs sent.
	NakSendCount atomic.Uint64

	// DataMsgSendCount indicates the number of data messages sent.
	DataMsgSendCount atomic.Uint64
	// DataMsgRecvCount indicates the number of data messages received.
	DataMsgRecvCount atomic.Uint64
	// DataMsgErrCount indicates the number of data messages that failed to send or decode.
	DataMsgErrCount atomic.Uint64
	// DataMsgInflightCount indicates the number of primary messages waiting for a reply.
	DataMsgInflightCount atomic.Int64

	// T3TimeoutCount indicates the number of reply timeouts.
	T3TimeoutCount atomic.Uint64

	// ConnRetryGauge indicates the number of connection retries since the last success.
	ConnRetryGauge atomic.Uint32
}

func (m *ConnectionMetrics) incBlockSendCount() { m.BlockSendCount.Add(1) }

func (m *ConnectionMetrics) incBlockRecvCount() { m.BlockRecvCount.Add(1) }

func (m *ConnectionMetrics) incBlockRetryCount() { m.BlockRetryCount.Add(1) }

func (m *ConnectionMetrics) incNakSendCount() { m.NakSendCount.Add(1) }

func (m *ConnectionMetrics) incDataMsgSendCount() { m.DataMsgSendCount.Add(1) }

func (m *ConnectionMetrics) incDataMsgRecvCount() { m.DataMsgRecvCount.Add(1) }

func (m *ConnectionMetrics) incDataMsgErrCount() { m.DataMsgErrCount.Add(1) }

func (m *ConnectionMetrics) incDataMsgInflightCount() { m.DataMsgInflightCount.Add(1) }

func (m *ConnectionMetrics) decDataMsgInflightCount() { m.DataMsgInflightCount.Add(-1) }

func (m *ConnectionMetrics) incT3TimeoutCount() { m.T3TimeoutCount.Add(1) }

func (m *ConnectionMetrics) incConnRetryGauge() { m.ConnRetryGauge.Add(1) }

func (m *ConnectionMetrics) resetConnRetryGauge() { m.ConnRetryGauge.Store(0) }
