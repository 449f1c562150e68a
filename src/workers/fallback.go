package workers

import (
	"context"

	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// IntradaySource is anything that serves minute bars for a symbol
type IntradaySource interface {
	GetIntraday(ctx context.Context, symbol, interval string, from, to int64) ([]models.MIntradayBar, error)
}

// FetchIntraday asks primary first and turns to fallback when primary fails
// or has no bars for the range. The primary error is returned only when the
// fallback has nothing either.
func FetchIntraday(ctx context.Context, primary IntradaySource, fallback interfaces.IFallbackSource, log *logger.Logger,
	symbol, interval string, from, to int64) ([]models.MIntradayBar, error) {

	bars, err := primary.GetIntraday(ctx, symbol, interval, from, to)
	if (err == nil && len(bars) > 0) || fallback == nil || ctx.Err() != nil {
		return bars, err
	}

	alt, ferr := fallback.GetIntraday(ctx, symbol, interval, from, to)
	if ferr != nil {
		log.Warning("Fallback intraday for %s failed: %v", symbol, ferr)
		return bars, err
	}
	if len(alt) == 0 {
		return bars, err
	}
	if err != nil {
		log.Info("Primary intraday for %s failed (%v), using %d fallback bars", symbol, err, len(alt))
	}
	return alt, nil
}
