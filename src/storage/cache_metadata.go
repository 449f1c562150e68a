package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"market-data-server/src/helpers"
	"market-data-server/src/models"
)

// -----------------------------------------------------------------------------

func (s *sqlStore) GetCacheMetadata(ctx context.Context, key string) (*models.MCacheMetadata, error) {
	query := fmt.Sprintf(`
		SELECT key, data_type, ticker, ttl_seconds, last_fetched_at, record_count
		FROM %s WHERE key = ?
	`, s.table("cache_metadata"))

	var m models.MCacheMetadata
	var ticker sql.NullString
	var last int64
	err := s.DB.QueryRowContext(ctx, s.rebind(query), key).Scan(&m.Key, &m.DataType, &ticker, &m.TTLSeconds, &last, &m.RecordCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helpers.NewPersistenceError("get cache metadata", err)
	}
	m.Ticker = ticker.String
	m.LastFetchedAt = fromMillis(last)
	return &m, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) UpsertCacheMetadata(ctx context.Context, m models.MCacheMetadata) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, data_type, ticker, ttl_seconds, last_fetched_at, record_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			data_type = excluded.data_type,
			ticker = excluded.ticker,
			ttl_seconds = excluded.ttl_seconds,
			last_fetched_at = excluded.last_fetched_at,
			record_count = excluded.record_count
	`, s.table("cache_metadata"))

	_, err := s.exec(ctx, "upsert cache metadata", query,
		m.Key, m.DataType, m.Ticker, m.TTLSeconds, toMillis(m.LastFetchedAt), m.RecordCount)
	return err
}
