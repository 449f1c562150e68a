package main

import (
	"market-data-server/src/data_source/eodhd"
	"market-data-server/src/data_source/sec"
	"market-data-server/src/interfaces"
	"market-data-server/src/logger"
	"market-data-server/src/models"
	"market-data-server/src/network"
)

// -----------------------------------------------------------------------------

// setupNetwork initializes the network manager
func setupNetwork(config *models.MConfig) interfaces.INetworkManager {
	networkLogger := logger.NewLogger(config, "NetworkManager")
	return network.NewAsyncNetworkManager(config, networkLogger)
}

// -----------------------------------------------------------------------------

// setupSources builds the upstream clients without any storage behind them
func setupSources(config *models.MConfig, networkManager interfaces.INetworkManager) (*eodhd.EODHDSource, *sec.SECSource) {
	upstream := eodhd.NewEODHDSource(config, networkManager, logger.NewLogger(config, "EODHD"))
	filings := sec.NewSECSource(config, networkManager, logger.NewLogger(config, "SEC"))
	return upstream, filings
}
