package monitor

import "sync/atomic"

// ScanStats counts scan-loop activity for reports and the health view
type ScanStats struct {
	TotalScans           atomic.Int64
	SuccessfulScans      atomic.Int64
	FailedScans          atomic.Int64
	RPCCalls             atomic.Int64
	RPCErrors            atomic.Int64
	TransactionsDetected atomic.Int64
	AlertsSent           atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters
type StatsSnapshot struct {
	TotalScans           int64 `json:"total_scans"`
	SuccessfulScans      int64 `json:"successful_scans"`
	FailedScans          int64 `json:"failed_scans"`
	RPCCalls             int64 `json:"rpc_calls"`
	RPCErrors            int64 `json:"rpc_errors"`
	TransactionsDetected int64 `json:"transactions_detected"`
	AlertsSent           int64 `json:"alerts_sent"`
}

// Snapshot copies the counters
func (s *ScanStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalScans:           s.TotalScans.Load(),
		SuccessfulScans:      s.SuccessfulScans.Load(),
		FailedScans:          s.FailedScans.Load(),
		RPCCalls:             s.RPCCalls.Load(),
		RPCErrors:            s.RPCErrors.Load(),
		TransactionsDetected: s.TransactionsDetected.Load(),
		AlertsSent:           s.AlertsSent.Load(),
	}
}
