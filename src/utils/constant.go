package utils

import "time"

// -----------------------------------------------------------------------------

const (
	DefaultRetentionDays = 7

	// Live quotes arrive about four times a minute
	LivePollInterval = 15 * time.Second

	// Upstream intraday feed lag, plus one minute of safety
	DefaultIntradayDelay = 15 * time.Minute
	ReconcileBuffer      = time.Minute

	// RangeCache coverage heuristic
	CoverageMinDays  = 30
	CoverageMinRatio = 0.8

	// Historical prefetch skips tickers that already hold this many daily rows
	PrefetchSkipRows = 1000

	RequestLogCapacity = 100
	NewsLookbackDays   = 30
	NewsJobTimeout     = 5 * time.Minute
)
