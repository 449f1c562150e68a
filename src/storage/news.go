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

// UpsertContent is idempotent on content_id
func (s *sqlStore) UpsertContent(ctx context.Context, c models.MContent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (content_id, url, title, summary, full_content, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			full_content = excluded.full_content,
			fetched_at = excluded.fetched_at
	`, s.table("content"))

	_, err := s.exec(ctx, "upsert content", query, c.ContentID, c.URL, c.Title, c.Summary, c.FullContent, toMillis(c.FetchedAt))
	return err
}

// -----------------------------------------------------------------------------

func (s *sqlStore) GetContent(ctx context.Context, contentID string) (*models.MContent, error) {
	query := fmt.Sprintf(`
		SELECT content_id, url, title, summary, full_content, fetched_at FROM %s WHERE content_id = ?
	`, s.table("content"))

	var c models.MContent
	var title, summary, full sql.NullString
	var fetched int64
	err := s.DB.QueryRowContext(ctx, s.rebind(query), contentID).Scan(&c.ContentID, &c.URL, &title, &summary, &full, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helpers.NewPersistenceError("get content", err)
	}
	c.Title, c.Summary, c.FullContent = title.String, summary.String, full.String
	c.FetchedAt = fromMillis(fetched)
	return &c, nil
}

// -----------------------------------------------------------------------------

// UpsertNews writes the metadata row and replaces its ticker links in one transaction
func (s *sqlStore) UpsertNews(ctx context.Context, a models.MNewsArticle) error {
	upsert := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (id, content_id, source, published_at, polarity, positive, negative, neutral, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content_id = excluded.content_id,
			source = excluded.source,
			published_at = excluded.published_at,
			polarity = excluded.polarity,
			positive = excluded.positive,
			negative = excluded.negative,
			neutral = excluded.neutral,
			fetched_at = excluded.fetched_at
	`, s.table("news")))
	unlink := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE news_id = ?`, s.table("news_tickers")))
	link := s.rebind(fmt.Sprintf(`INSERT INTO %s (news_id, ticker) VALUES (?, ?) ON CONFLICT DO NOTHING`, s.table("news_tickers")))

	return s.withTx(ctx, "upsert news", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsert, a.ID, a.ContentID, a.Source, toMillis(a.PublishedAt),
			a.Sentiment.Polarity, a.Sentiment.Positive, a.Sentiment.Negative, a.Sentiment.Neutral, time.Now().UTC().UnixMilli())
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, unlink, a.ID); err != nil {
			return err
		}
		for _, t := range a.Tickers {
			if _, err := tx.ExecContext(ctx, link, a.ID, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (s *sqlStore) GetNewsForTicker(ctx context.Context, ticker string, limit, offset int) ([]models.MNewsArticle, error) {
	query := fmt.Sprintf(`
		SELECT n.id, n.content_id, n.source, n.published_at, n.polarity, n.positive, n.negative, n.neutral,
			c.title, c.url, c.summary
		FROM %s n
		JOIN %s nt ON nt.news_id = n.id
		LEFT JOIN %s c ON c.content_id = n.content_id
		WHERE nt.ticker = ?
		ORDER BY n.published_at DESC
		LIMIT ? OFFSET ?
	`, s.table("news"), s.table("news_tickers"), s.table("content"))

	rows, err := s.DB.QueryContext(ctx, s.rebind(query), ticker, limit, offset)
	if err != nil {
		return nil, helpers.NewPersistenceError("get news", err)
	}

	var out []models.MNewsArticle
	for rows.Next() {
		var a models.MNewsArticle
		var source, title, url, summary sql.NullString
		var published int64
		if err := rows.Scan(&a.ID, &a.ContentID, &source, &published, &a.Sentiment.Polarity, &a.Sentiment.Positive,
			&a.Sentiment.Negative, &a.Sentiment.Neutral, &title, &url, &summary); err != nil {
			rows.Close()
			return nil, helpers.NewPersistenceError("get news", err)
		}
		a.Source, a.Title, a.URL, a.Summary = source.String, title.String, url.String, summary.String
		a.PublishedAt = fromMillis(published)
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, helpers.NewPersistenceError("get news", err)
	}

	for i := range out {
		tickers, err := s.newsTickers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tickers = tickers
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) newsTickers(ctx context.Context, newsID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT ticker FROM %s WHERE news_id = ? ORDER BY ticker`, s.table("news_tickers"))
	rows, err := s.DB.QueryContext(ctx, s.rebind(query), newsID)
	if err != nil {
		return nil, helpers.NewPersistenceError("get news tickers", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, helpers.NewPersistenceError("get news tickers", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

// LatestNewsDate returns nil when nothing is stored for ticker
func (s *sqlStore) LatestNewsDate(ctx context.Context, ticker string) (*time.Time, error) {
	query := fmt.Sprintf(`
		SELECT MAX(n.published_at) FROM %s n
		JOIN %s nt ON nt.news_id = n.id
		WHERE nt.ticker = ?
	`, s.table("news"), s.table("news_tickers"))

	var latest sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, s.rebind(query), ticker).Scan(&latest); err != nil {
		return nil, helpers.NewPersistenceError("latest news date", err)
	}
	return ptrFromNull(latest), nil
}
