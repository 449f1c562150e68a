package core

// OHLCV is one bar's open, high, low, close and volume
type OHLCV struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// -----------------------------------------------------------------------------

// Combine folds consecutive bars into one. Volumes are summed.
func Combine(parts []OHLCV) OHLCV {
	if len(parts) == 0 {
		return OHLCV{}
	}

	out := parts[0]
	out.Volume = 0
	for _, p := range parts {
		if p.High > out.High {
			out.High = p.High
		}
		if p.Low < out.Low {
			out.Low = p.Low
		}
		out.Volume += p.Volume
	}
	out.Close = parts[len(parts)-1].Close
	return out
}

// -----------------------------------------------------------------------------

// CalculateChangePercent returns the fractional change, 0 when previous is 0.
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous
}
