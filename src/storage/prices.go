package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------
// Live prices
// -----------------------------------------------------------------------------

func (s *sqlStore) UpsertLivePrice(ctx context.Context, p models.MLivePrice) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (ticker, exchange, price, open, high, low, previous_close, change, change_percent, volume, market_timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			exchange = excluded.exchange,
			price = excluded.price,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			previous_close = excluded.previous_close,
			change = excluded.change,
			change_percent = excluded.change_percent,
			volume = excluded.volume,
			market_timestamp = excluded.market_timestamp,
			updated_at = excluded.updated_at
	`, s.table("live_prices"))

	_, err := s.exec(ctx, "upsert live price", query,
		p.Ticker, p.Exchange, p.Price, p.Open, p.High, p.Low, p.PreviousClose, p.Change, p.ChangePercent,
		p.Volume, toMillis(p.MarketTimestamp), toMillis(p.UpdatedAt))
	return err
}

// -----------------------------------------------------------------------------

const livePriceColumns = `ticker, exchange, price, open, high, low, previous_close, change, change_percent, volume, market_timestamp, updated_at`

func scanLivePrice(row interface{ Scan(...interface{}) error }) (models.MLivePrice, error) {
	var p models.MLivePrice
	var exchange sql.NullString
	var marketTs, updated int64
	err := row.Scan(&p.Ticker, &exchange, &p.Price, &p.Open, &p.High, &p.Low, &p.PreviousClose,
		&p.Change, &p.ChangePercent, &p.Volume, &marketTs, &updated)
	p.Exchange = exchange.String
	p.MarketTimestamp = fromMillis(marketTs)
	p.UpdatedAt = fromMillis(updated)
	return p, err
}

// -----------------------------------------------------------------------------

func (s *sqlStore) GetLivePrice(ctx context.Context, ticker string) (*models.MLivePrice, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE ticker = ?`, livePriceColumns, s.table("live_prices"))
	p, err := scanLivePrice(s.DB.QueryRowContext(ctx, s.rebind(query), ticker))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helpers.NewPersistenceError("get live price", err)
	}
	return &p, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) ListLivePrices(ctx context.Context) ([]models.MLivePrice, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY ticker`, livePriceColumns, s.table("live_prices"))
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, helpers.NewPersistenceError("list live prices", err)
	}
	defer rows.Close()

	var out []models.MLivePrice
	for rows.Next() {
		p, err := scanLivePrice(rows)
		if err != nil {
			return nil, helpers.NewPersistenceError("list live prices", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Intraday bars
// -----------------------------------------------------------------------------

// UpsertIntradayBars keeps reconciled rows authoritative: a live bar only
// replaces another live bar.
func (s *sqlStore) UpsertIntradayBars(ctx context.Context, bars []models.MIntradayBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := s.rebind(fmt.Sprintf(`
		INSERT INTO %s AS ip (ticker, timestamp, open, high, low, close, volume, source, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			source = excluded.source,
			fetched_at = excluded.fetched_at
		WHERE ip.source = '%s' OR excluded.source <> '%s'
	`, s.table("intraday_prices"), models.SourceLive, models.SourceLive))

	return s.withTx(ctx, "upsert intraday bars", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			_, err := stmt.ExecContext(ctx, b.Ticker, toMillis(b.Timestamp), b.Open, b.High, b.Low, b.Close,
				b.Volume, b.Source, toMillis(b.FetchedAt))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (s *sqlStore) GetIntradayBars(ctx context.Context, ticker string, from, to time.Time) ([]models.MIntradayBar, error) {
	clause, args := rangeClause("timestamp", from, to)
	query := fmt.Sprintf(`
		SELECT ticker, timestamp, open, high, low, close, volume, source, fetched_at
		FROM %s WHERE ticker = ?%s ORDER BY timestamp
	`, s.table("intraday_prices"), clause)

	rows, err := s.DB.QueryContext(ctx, s.rebind(query), append([]interface{}{ticker}, args...)...)
	if err != nil {
		return nil, helpers.NewPersistenceError("get intraday bars", err)
	}
	defer rows.Close()

	var out []models.MIntradayBar
	for rows.Next() {
		var b models.MIntradayBar
		var ts, fetched int64
		if err := rows.Scan(&b.Ticker, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Source, &fetched); err != nil {
			return nil, helpers.NewPersistenceError("get intraday bars", err)
		}
		b.Timestamp = fromMillis(ts)
		b.FetchedAt = fromMillis(fetched)
		out = append(out, b)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

// DeleteIntradayBefore is the retention cleanup
func (s *sqlStore) DeleteIntradayBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, s.table("intraday_prices"))
	res, err := s.exec(ctx, "cleanup intraday", query, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// -----------------------------------------------------------------------------
// Daily bars
// -----------------------------------------------------------------------------

func (s *sqlStore) UpsertDailyBars(ctx context.Context, bars []models.MDailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (ticker, date, open, high, low, close, adjusted_close, volume, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			adjusted_close = excluded.adjusted_close,
			volume = excluded.volume,
			fetched_at = excluded.fetched_at
	`, s.table("daily_prices")))

	return s.withTx(ctx, "upsert daily bars", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			_, err := stmt.ExecContext(ctx, b.Ticker, toMillis(b.Date), b.Open, b.High, b.Low, b.Close,
				b.AdjustedClose, b.Volume, toMillis(b.FetchedAt))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (s *sqlStore) GetDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]models.MDailyBar, error) {
	clause, args := rangeClause("date", from, to)
	query := fmt.Sprintf(`
		SELECT ticker, date, open, high, low, close, adjusted_close, volume, fetched_at
		FROM %s WHERE ticker = ?%s ORDER BY date
	`, s.table("daily_prices"), clause)

	rows, err := s.DB.QueryContext(ctx, s.rebind(query), append([]interface{}{ticker}, args...)...)
	if err != nil {
		return nil, helpers.NewPersistenceError("get daily bars", err)
	}
	defer rows.Close()

	var out []models.MDailyBar
	for rows.Next() {
		var b models.MDailyBar
		var date, fetched int64
		if err := rows.Scan(&b.Ticker, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjustedClose, &b.Volume, &fetched); err != nil {
			return nil, helpers.NewPersistenceError("get daily bars", err)
		}
		b.Date = fromMillis(date)
		b.FetchedAt = fromMillis(fetched)
		out = append(out, b)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) CountDailyBars(ctx context.Context, ticker string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ticker = ?`, s.table("daily_prices"))
	var n int
	if err := s.DB.QueryRowContext(ctx, s.rebind(query), ticker).Scan(&n); err != nil {
		return 0, helpers.NewPersistenceError("count daily bars", err)
	}
	return n, nil
}
