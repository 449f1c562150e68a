package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------

func (s *sqlStore) UpsertTrackedStock(ctx context.Context, t models.MTrackedStock) error {
	if t.AddedAt.IsZero() {
		t.AddedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (ticker, exchange, track_prices, track_news, added_at, last_price_update, last_news_update)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			exchange = excluded.exchange,
			track_prices = excluded.track_prices,
			track_news = excluded.track_news
	`, s.table("tracked_stocks"))

	_, err := s.exec(ctx, "upsert tracked stock", query, t.Ticker, t.Exchange, t.TrackPrices, t.TrackNews,
		toMillis(t.AddedAt), nullMillis(t.LastPriceUpdate), nullMillis(t.LastNewsUpdate))
	return err
}

// -----------------------------------------------------------------------------

func (s *sqlStore) DeleteTrackedStock(ctx context.Context, ticker string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE ticker = ?`, s.table("tracked_stocks"))
	res, err := s.exec(ctx, "delete tracked stock", query, ticker)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) ListTrackedStocks(ctx context.Context) ([]models.MTrackedStock, error) {
	query := fmt.Sprintf(`
		SELECT ticker, exchange, track_prices, track_news, added_at, last_price_update, last_news_update
		FROM %s ORDER BY added_at DESC, ticker
	`, s.table("tracked_stocks"))

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewPersistenceError("list tracked stocks", err)
	}
	defer rows.Close()

	var out []models.MTrackedStock
	for rows.Next() {
		var t models.MTrackedStock
		var exchange sql.NullString
		var added int64
		var lastPrice, lastNews sql.NullInt64
		if err := rows.Scan(&t.Ticker, &exchange, &t.TrackPrices, &t.TrackNews, &added, &lastPrice, &lastNews); err != nil {
			return nil, helpers.NewPersistenceError("list tracked stocks", err)
		}
		t.Exchange = exchange.String
		t.AddedAt = fromMillis(added)
		t.LastPriceUpdate = ptrFromNull(lastPrice)
		t.LastNewsUpdate = ptrFromNull(lastNews)
		out = append(out, t)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) TouchPriceUpdate(ctx context.Context, ticker string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_price_update = ? WHERE ticker = ?`, s.table("tracked_stocks"))
	_, err := s.exec(ctx, "touch price update", query, toMillis(at), models.BaseTicker(ticker))
	return err
}

// -----------------------------------------------------------------------------

func (s *sqlStore) TouchNewsUpdate(ctx context.Context, ticker string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_news_update = ? WHERE ticker = ?`, s.table("tracked_stocks"))
	_, err := s.exec(ctx, "touch news update", query, toMillis(at), models.BaseTicker(ticker))
	return err
}
