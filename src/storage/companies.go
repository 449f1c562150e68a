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

// UpsertCompany keeps shares_outstanding untouched; it is owned by the filings job
func (s *sqlStore) UpsertCompany(ctx context.Context, c models.MCompany) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (ticker, name, exchange, sector, industry, market_cap, pe_ratio, eps, shares_outstanding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			name = excluded.name,
			exchange = excluded.exchange,
			sector = excluded.sector,
			industry = excluded.industry,
			market_cap = excluded.market_cap,
			pe_ratio = excluded.pe_ratio,
			eps = excluded.eps,
			updated_at = excluded.updated_at
	`, s.table("companies"))

	_, err := s.exec(ctx, "upsert company", query, c.Ticker, c.Name, c.Exchange, c.Sector, c.Industry,
		c.MarketCap, c.PERatio, c.EPS, c.SharesOutstanding, toMillis(c.UpdatedAt))
	return err
}

// -----------------------------------------------------------------------------

func (s *sqlStore) GetCompany(ctx context.Context, ticker string) (*models.MCompany, error) {
	query := fmt.Sprintf(`
		SELECT ticker, name, exchange, sector, industry, market_cap, pe_ratio, eps, shares_outstanding, updated_at
		FROM %s WHERE ticker = ?
	`, s.table("companies"))

	var c models.MCompany
	var name, exchange, sector, industry sql.NullString
	var updated int64
	err := s.DB.QueryRowContext(ctx, s.rebind(query), ticker).Scan(&c.Ticker, &name, &exchange, &sector, &industry,
		&c.MarketCap, &c.PERatio, &c.EPS, &c.SharesOutstanding, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helpers.NewPersistenceError("get company", err)
	}
	c.Name, c.Exchange, c.Sector, c.Industry = name.String, exchange.String, sector.String, industry.String
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

// -----------------------------------------------------------------------------

// UpdateSharesOutstanding creates a bare company row when none exists
func (s *sqlStore) UpdateSharesOutstanding(ctx context.Context, ticker string, shares int64, at time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (ticker, shares_outstanding, updated_at, market_cap, pe_ratio, eps)
		VALUES (?, ?, ?, 0, 0, 0)
		ON CONFLICT (ticker) DO UPDATE SET
			shares_outstanding = excluded.shares_outstanding,
			updated_at = excluded.updated_at
	`, s.table("companies"))

	_, err := s.exec(ctx, "update shares outstanding", query, ticker, shares, toMillis(at))
	return err
}
