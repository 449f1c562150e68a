package storage

import "fmt"

// -----------------------------------------------------------------------------

// createTables creates every table if missing. Cached data survives restarts.
func (s *sqlStore) createTables() error {
	r, i := s.typeReal, s.typeInt

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				data_type TEXT,
				ticker TEXT,
				ttl_seconds %s,
				last_fetched_at %s,
				record_count %s
			);
		`, s.table("cache_metadata"), i, i, i),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT PRIMARY KEY,
				exchange TEXT,
				price %s,
				open %s,
				high %s,
				low %s,
				previous_close %s,
				change %s,
				change_percent %s,
				volume %s,
				market_timestamp %s,
				updated_at %s
			);
		`, s.table("live_prices"), r, r, r, r, r, r, r, i, i, i),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT,
				timestamp %s,
				open %s,
				high %s,
				low %s,
				close %s,
				volume %s,
				source TEXT,
				fetched_at %s,
				PRIMARY KEY (ticker, timestamp)
			);
		`, s.table("intraday_prices"), i, r, r, r, r, i, i),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_intraday_timestamp ON %s (timestamp);`, s.table("intraday_prices")),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT,
				date %s,
				open %s,
				high %s,
				low %s,
				close %s,
				adjusted_close %s,
				volume %s,
				fetched_at %s,
				PRIMARY KEY (ticker, date)
			);
		`, s.table("daily_prices"), i, r, r, r, r, r, i, i),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				content_id TEXT PRIMARY KEY,
				url TEXT,
				title TEXT,
				summary TEXT,
				full_content TEXT,
				fetched_at %s
			);
		`, s.table("content"), i),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				content_id TEXT,
				source TEXT,
				published_at %s,
				polarity %s,
				positive %s,
				negative %s,
				neutral %s,
				fetched_at %s
			);
		`, s.table("news"), i, r, r, r, r, i),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				news_id TEXT,
				ticker TEXT,
				PRIMARY KEY (news_id, ticker)
			);
		`, s.table("news_tickers")),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_news_tickers_ticker ON %s (ticker);`, s.table("news_tickers")),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT PRIMARY KEY,
				name TEXT,
				exchange TEXT,
				sector TEXT,
				industry TEXT,
				market_cap %s,
				pe_ratio %s,
				eps %s,
				shares_outstanding %s,
				updated_at %s
			);
		`, s.table("companies"), r, r, r, i, i),

		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				ticker TEXT PRIMARY KEY,
				exchange TEXT,
				track_prices BOOLEAN,
				track_news BOOLEAN,
				added_at %s,
				last_price_update %s,
				last_news_update %s
			);
		`, s.table("tracked_stocks"), i, i, i),
	}

	for _, stmt := range statements {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
