package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"market-data-server/src/helpers"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// Conn is one connected client as the fan-out sees it
type Conn interface {
	// Send queues msg for delivery. It must not block.
	Send(msg interface{}) error
	Close() error
}

type subscriber struct {
	conn    Conn
	tickers map[string]struct{}
}

// -----------------------------------------------------------------------------
// SubscriptionManager is the registry of WebSocket clients and the tickers
// each one follows. Delivery is best effort: a failed send is logged and the
// client stays registered until it disconnects.
// -----------------------------------------------------------------------------

type SubscriptionManager struct {
	Logger *logger.Logger

	mu      sync.RWMutex
	clients map[string]*subscriber
}

func NewSubscriptionManager(log *logger.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		Logger:  log,
		clients: make(map[string]*subscriber),
	}
}

// -----------------------------------------------------------------------------

// NormalizeTickers upper-cases, strips exchange suffixes and dedups
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = models.BaseTicker(strings.ToUpper(strings.TrimSpace(t)))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// -----------------------------------------------------------------------------

// Connect registers conn under a fresh id
func (m *SubscriptionManager) Connect(conn Conn) string {
	id := uuid.NewString()
	m.Register(id, conn)
	return id
}

// Register adds conn under id. From here on it receives broadcasts.
func (m *SubscriptionManager) Register(id string, conn Conn) {
	m.mu.Lock()
	m.clients[id] = &subscriber{conn: conn, tickers: make(map[string]struct{})}
	n := len(m.clients)
	m.mu.Unlock()
	m.Logger.Info("Client %s connected (%d total)", id, n)
}

func (m *SubscriptionManager) Disconnect(id string) {
	m.mu.Lock()
	_, ok := m.clients[id]
	delete(m.clients, id)
	m.mu.Unlock()
	if ok {
		m.Logger.Info("Client %s disconnected", id)
	}
}

// CloseAll closes every connection and empties the registry
func (m *SubscriptionManager) CloseAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*subscriber)
	m.mu.Unlock()

	for _, s := range clients {
		_ = s.conn.Close()
	}
	m.Logger.Info("Closed %d connections", len(clients))
}

func (m *SubscriptionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// -----------------------------------------------------------------------------

// Subscribe adds tickers to the client's set and returns them normalized.
// ok is false for an unknown client.
func (m *SubscriptionManager) Subscribe(id string, tickers []string) ([]string, bool) {
	norm := NormalizeTickers(tickers)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.clients[id]
	if !ok {
		return nil, false
	}
	for _, t := range norm {
		s.tickers[t] = struct{}{}
	}
	return norm, true
}

func (m *SubscriptionManager) Unsubscribe(id string, tickers []string) ([]string, bool) {
	norm := NormalizeTickers(tickers)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.clients[id]
	if !ok {
		return nil, false
	}
	for _, t := range norm {
		delete(s.tickers, t)
	}
	return norm, true
}

// Subscriptions returns the client's tickers, sorted
func (m *SubscriptionManager) Subscriptions(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	if s, ok := m.clients[id]; ok {
		for t := range s.tickers {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

func (m *SubscriptionManager) SendTo(id string, msg interface{}) error {
	m.mu.RLock()
	s, ok := m.clients[id]
	m.mu.RUnlock()
	if !ok {
		return helpers.NewDeliveryError(id, errUnknownClient)
	}
	if err := s.conn.Send(msg); err != nil {
		return helpers.NewDeliveryError(id, err)
	}
	return nil
}

// deliver sends to the selected clients outside the registry lock and
// returns how many accepted the message
func (m *SubscriptionManager) deliver(msg interface{}, keep func(*subscriber) bool) int {
	type target struct {
		id   string
		conn Conn
	}

	m.mu.RLock()
	targets := make([]target, 0, len(m.clients))
	for id, s := range m.clients {
		if keep(s) {
			targets = append(targets, target{id, s.conn})
		}
	}
	m.mu.RUnlock()

	delivered := 0
	for _, t := range targets {
		if err := t.conn.Send(msg); err != nil {
			m.Logger.Warning("%v", helpers.NewDeliveryError(t.id, err))
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastToTicker sends msg to every client subscribed to ticker
func (m *SubscriptionManager) BroadcastToTicker(ticker string, msg interface{}) int {
	return m.deliver(msg, func(s *subscriber) bool {
		_, ok := s.tickers[ticker]
		return ok
	})
}

// Broadcast sends msg to every client
func (m *SubscriptionManager) Broadcast(msg interface{}) int {
	return m.deliver(msg, func(*subscriber) bool { return true })
}

// -----------------------------------------------------------------------------
// interfaces.IBroadcaster
// -----------------------------------------------------------------------------

func (m *SubscriptionManager) BroadcastPriceUpdate(ticker string, data models.MPriceUpdate) {
	m.BroadcastToTicker(ticker, models.MUpdateFrame{Type: models.FramePriceUpdate, Ticker: ticker, Data: data})
}

func (m *SubscriptionManager) BroadcastNewsUpdate(ticker string, data models.MNewsUpdate) {
	m.BroadcastToTicker(ticker, models.MUpdateFrame{Type: models.FrameNewsUpdate, Ticker: ticker, Data: data})
}

func (m *SubscriptionManager) BroadcastTrackingStatus(tickers []string, action, ticker string) {
	if tickers == nil {
		tickers = []string{}
	}
	m.Broadcast(models.MTrackingStatusFrame{
		Type:          models.FrameTrackingStatus,
		TrackedStocks: tickers,
		Action:        action,
		Ticker:        ticker,
	})
}
