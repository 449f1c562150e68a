package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"market-data-server/src/config"
	"market-data-server/src/data_source/sec"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/utils"
)

// probe checks upstream reachability and market hours once, then exits.
// It never touches the database.
func main() {
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	symbols := flag.String("symbols", "AAPL.US", "comma separated symbols to quote")
	exchanges := flag.String("exchanges", "US,LSE,HK,TSE", "comma separated exchanges to check")
	withSEC := flag.Bool("sec", false, "also look up SEC shares outstanding for US symbols")
	flag.Parse()

	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	appLogger := logger.NewLogger(conf.MConfig, "Probe")

	// 1. Market hours
	now := time.Now().UTC()
	clock := utils.NewMarketScheduler(appLogger.Named("MarketHours"))
	for _, ex := range split(*exchanges) {
		state := "closed"
		if clock.IsMarketOpen(ex, now) {
			state = "open"
		}
		fmt.Printf("%-4s %s at %s\n", ex, state, now.Format(time.RFC3339))
	}

	// 2. Quotes
	upstream, filings := setupSources(conf.MConfig, setupNetwork(conf.MConfig))
	defer upstream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	list := split(*symbols)
	quotes, err := upstream.GetRealTimeBatch(ctx, list)
	if err != nil {
		appLogger.Error("Real-time batch failed: %v", err)
		os.Exit(1)
	}
	for _, q := range quotes {
		if !q.HasPrice {
			fmt.Printf("%-10s no price\n", q.Code)
			continue
		}
		fmt.Printf("%-10s %10.4f %+8.2f%%  vol %d\n", q.Code, q.Close, q.ChangePercent, q.Volume)
	}

	// 3. Filings
	if *withSEC {
		for _, sym := range list {
			ticker, exchange := models.SplitSymbol(sym)
			if exchange != "" && exchange != models.DefaultExchange {
				continue
			}
			facts, err := filings.GetSharesHistory(ctx, ticker)
			if err != nil {
				appLogger.Warning("SEC lookup for %s failed: %v", ticker, err)
				continue
			}
			fmt.Printf("%-10s %d shares outstanding (%d facts)\n", ticker, sec.LatestShares(facts), len(facts))
		}
	}

	stats := upstream.Stats()
	fmt.Printf("upstream calls: %d\n", stats.APICalls)
}

func split(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
