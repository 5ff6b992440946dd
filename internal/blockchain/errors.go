package blockchain

import (
	"strings"
)

// FailureKind buckets RPC failures for retry decisions and scan logs
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureTimeout     FailureKind = "timeout"
	FailureNetwork     FailureKind = "network"
	FailureNodeBehind  FailureKind = "node_behind"
	FailureBreakerOpen FailureKind = "breaker_open"
	FailureOther       FailureKind = "other"
)

// ClassifyFailure maps an RPC error to a failure bucket
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return ""
	}
	raw := strings.ToLower(err.Error())

	switch {
	case strings.Contains(raw, "429"), strings.Contains(raw, "rate limit"):
		return FailureRateLimited
	case strings.Contains(raw, "timeout"), strings.Contains(raw, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(raw, "connection refused"), strings.Contains(raw, "no such host"):
		return FailureNetwork
	case strings.Contains(raw, "node is behind"), strings.Contains(raw, "block not available"):
		return FailureNodeBehind
	case strings.Contains(raw, "circuit breaker"):
		return FailureBreakerOpen
	default:
		return FailureOther
	}
}

// Retryable reports whether a failure is worth another attempt soon
func Retryable(kind FailureKind) bool {
	switch kind {
	case FailureRateLimited, FailureTimeout, FailureNetwork, FailureNodeBehind:
		return true
	default:
		return false
	}
}
