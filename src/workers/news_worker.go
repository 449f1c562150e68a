package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

const summaryMaxBytes = 500

// Layouts the upstream has been seen to use for article dates
var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// -----------------------------------------------------------------------------
// NewsWorker pulls recent articles for tracked tickers into content-addressed
// storage and pushes news_update frames.
// -----------------------------------------------------------------------------

type NewsWorker struct {
	Store       NewsStore
	Source      interfaces.INewsSource
	Broadcaster interfaces.IBroadcaster
	Logger      *logger.Logger
	Limit       int
	Timeout     time.Duration
	Stagger     time.Duration
	Now         func() time.Time
}

// -----------------------------------------------------------------------------

func NewNewsWorker(store NewsStore, source interfaces.INewsSource, b interfaces.IBroadcaster, limit int, log *logger.Logger) *NewsWorker {
	if limit <= 0 {
		limit = 100
	}
	return &NewsWorker{
		Store:       store,
		Source:      source,
		Broadcaster: b,
		Logger:      log,
		Limit:       limit,
		Timeout:     utils.NewsJobTimeout,
		Stagger:     100 * time.Millisecond,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------

// ContentID addresses an article body by its URL
func ContentID(link string) string {
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:])
}

// NewsID identifies one publication of a URL
func NewsID(link, publishedAt string) string {
	sum := sha256.Sum256([]byte(link + "_" + publishedAt))
	return hex.EncodeToString(sum[:])
}

// ResolveSource prefers the upstream's source, then site, then the link host
func ResolveSource(a models.MUpstreamArticle) string {
	if a.Source != "" {
		return a.Source
	}
	if a.Site != "" {
		return a.Site
	}
	if u, err := url.Parse(a.Link); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	return ""
}

func parsePublished(s string) (time.Time, error) {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// -----------------------------------------------------------------------------

// Run fetches news for every tracked ticker, staggered and bounded by Timeout
func (w *NewsWorker) Run(ctx context.Context) *models.MBatchReport {
	report := models.NewBatchReport("news")

	tracked, err := trackedFor(ctx, w.Store, tracksNews)
	if err != nil {
		report.Fail("tracked_stocks", err)
		return report
	}
	if len(tracked) == 0 {
		report.Skip("no tracked stocks")
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	results := make([]error, len(tracked))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tracked {
		delay := time.Duration(i) * w.Stagger
		g.Go(func() error {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-gctx.Done():
					results[i] = gctx.Err()
					return nil
				}
			}
			_, results[i] = w.FetchForSymbol(gctx, t.Symbol())
			return nil
		})
	}
	_ = g.Wait()

	for i, t := range tracked {
		if results[i] != nil {
			report.Fail(t.Ticker, results[i])
			continue
		}
		report.Ok(t.Ticker)
	}

	if len(report.Failed) > 0 {
		w.Logger.Warning("%s", report)
	} else {
		w.Logger.Info("%s", report)
	}
	return report
}

// -----------------------------------------------------------------------------

// FetchForSymbol stores recent articles for symbol and returns how many were
// stored. Malformed articles are skipped.
func (w *NewsWorker) FetchForSymbol(ctx context.Context, symbol string) (int, error) {
	primary := models.BaseTicker(strings.ToUpper(symbol))
	now := w.Now()

	from := now.AddDate(0, 0, -utils.NewsLookbackDays)
	if latest, err := w.Store.LatestNewsDate(ctx, primary); err != nil {
		return 0, err
	} else if latest != nil {
		from = *latest
	}

	articles, err := w.Source.GetNews(ctx, symbol, from.Format("2006-01-02"), now.Format("2006-01-02"), w.Limit, 0)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, a := range articles {
		if a.Link == "" || a.Title == "" {
			w.Logger.Debug("Skipping article without link or title for %s", primary)
			continue
		}
		published, err := parsePublished(a.Date)
		if err != nil {
			w.Logger.Debug("Skipping article for %s: %v", primary, err)
			continue
		}

		article, content := w.build(a, primary, published, now)
		if err := w.Store.UpsertContent(ctx, content); err != nil {
			return stored, err
		}
		if err := w.Store.UpsertNews(ctx, article); err != nil {
			return stored, err
		}
		stored++

		w.Broadcaster.BroadcastNewsUpdate(primary, models.MNewsUpdate{
			ID:          article.ID,
			ContentID:   article.ContentID,
			Title:       a.Title,
			URL:         a.Link,
			Source:      article.Source,
			PublishedAt: a.Date,
			Tickers:     article.Tickers,
			Sentiment:   article.Sentiment,
		})
	}

	if err := w.Store.TouchNewsUpdate(ctx, primary, now); err != nil {
		return stored, err
	}
	w.Logger.Debug("Stored %d/%d articles for %s", stored, len(articles), primary)
	return stored, nil
}

// -----------------------------------------------------------------------------

// TruncateUTF8 cuts s to at most max bytes without splitting a character
func TruncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// -----------------------------------------------------------------------------

func (w *NewsWorker) build(a models.MUpstreamArticle, primary string, published, now time.Time) (models.MNewsArticle, models.MContent) {
	contentID := ContentID(a.Link)

	tickers := []string{primary}
	seen := map[string]bool{primary: true}
	for _, s := range a.Symbols {
		t := models.BaseTicker(strings.ToUpper(strings.TrimSpace(s)))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}

	var sentiment models.MSentiment
	if a.Sentiment != nil {
		sentiment = *a.Sentiment
	}

	summary := TruncateUTF8(a.Content, summaryMaxBytes)

	content := models.MContent{
		ContentID:   contentID,
		URL:         a.Link,
		Title:       a.Title,
		Summary:     summary,
		FullContent: a.Content,
		FetchedAt:   now,
	}
	article := models.MNewsArticle{
		ID:          NewsID(a.Link, a.Date),
		ContentID:   contentID,
		Tickers:     tickers,
		Source:      ResolveSource(a),
		PublishedAt: published,
		Sentiment:   sentiment,
	}
	return article, content
}
