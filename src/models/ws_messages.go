package models

// -----------------------------------------------------------------------------
// Client -> server frames
// -----------------------------------------------------------------------------

type MClientMessage struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers"`
}

// -----------------------------------------------------------------------------
// Server -> client frames
// -----------------------------------------------------------------------------

const (
	FrameConnected      = "connected"
	FrameSubscribed     = "subscribed"
	FrameUnsubscribed   = "unsubscribed"
	FramePong           = "pong"
	FrameSubscriptions  = "subscriptions"
	FramePriceUpdate    = "price_update"
	FrameNewsUpdate     = "news_update"
	FrameTrackingStatus = "tracking_status"
	FrameError          = "error"
)

type MConnectedFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

type MTickersFrame struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers"`
}

type MTypeFrame struct {
	Type string `json:"type"`
}

type MErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type MUpdateFrame struct {
	Type   string      `json:"type"`
	Ticker string      `json:"ticker"`
	Data   interface{} `json:"data"`
}

type MTrackingStatusFrame struct {
	Type          string   `json:"type"`
	TrackedStocks []string `json:"tracked_stocks"`
	Action        string   `json:"action,omitempty"`
	Ticker        string   `json:"ticker,omitempty"`
}

// MPriceUpdate is the payload of a price_update frame.
type MPriceUpdate struct {
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Timestamp     int64   `json:"timestamp"`
}

// MNewsUpdate is the payload of a news_update frame.
type MNewsUpdate struct {
	ID          string     `json:"id"`
	ContentID   string     `json:"content_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	PublishedAt string     `json:"published_at"`
	Tickers     []string   `json:"tickers"`
	Sentiment   MSentiment `json:"sentiment"`
}
