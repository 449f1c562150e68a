package interfaces

import (
	"time"

	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// IBroadcaster pushes updates to subscribed WebSocket clients.
// Delivery is best effort and never returns an error to the caller.
// -----------------------------------------------------------------------------

type IBroadcaster interface {
	BroadcastPriceUpdate(ticker string, data models.MPriceUpdate)

	BroadcastNewsUpdate(ticker string, data models.MNewsUpdate)

	// BroadcastTrackingStatus goes to every connection.
	BroadcastTrackingStatus(tickers []string, action, ticker string)
}

// -----------------------------------------------------------------------------
// IMarketClock answers market-hours questions.
// -----------------------------------------------------------------------------

type IMarketClock interface {
	IsMarketOpen(exchange string, now time.Time) bool

	// AnyMarketOpen is false for an empty list.
	AnyMarketOpen(exchanges []string, now time.Time) bool
}
