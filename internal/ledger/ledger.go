// Package ledger is the persisted virtual ledger ("dry" account book) that
// simulation and monitor-simulation modes trade against instead of the
// brokerage.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mirra/internal/pkg/jsonutil"
	"mirra/internal/types"

	"github.com/shopspring/decimal"
)

type book struct {
	MainAccount types.AccountSnapshot            `json:"main_account"`
	Clients     map[string]types.AccountSnapshot `json:"clients"`
	UpdatedAt   time.Time                        `json:"updated_at"`
}

// Ledger owns the dry book file. All mutations rewrite the file atomically.
type Ledger struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) load() book {
	var b book
	if !jsonutil.LoadOr(l.path, &b) || b.Clients == nil {
		b.Clients = make(map[string]types.AccountSnapshot)
	}
	return b
}

func (l *Ledger) save(b book) error {
	b.UpdatedAt = time.Now()
	return jsonutil.Save(l.path, b)
}

// Seeded reports whether a client already has a dry book entry.
func (l *Ledger) Seeded(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.load().Clients[clientID]
	return ok
}

// SeedClient copies a live snapshot into the dry book. Used once when a
// client first enters a simulation mode; later ticks only refresh main.
func (l *Ledger) SeedClient(clientID string, snap types.AccountSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.load()
	b.Clients[clientID] = snap
	return l.save(b)
}

// RefreshMain replaces the mirrored main-account snapshot.
func (l *Ledger) RefreshMain(snap types.AccountSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.load()
	b.MainAccount = snap
	return l.save(b)
}

// Main returns the mirrored main-account snapshot.
func (l *Ledger) Main() (types.AccountSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.load()
	return b.MainAccount, b.MainAccount.AccountID != ""
}

// Client returns the dry snapshot for one client.
func (l *Ledger) Client(clientID string) (types.AccountSnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, ok := l.load().Clients[clientID]
	return snap, ok
}

// GetSnapshot lets the ledger stand in as a snapshot provider for the
// simulation modes; the account ref is the client id.
func (l *Ledger) GetSnapshot(_ context.Context, clientID string) (types.AccountSnapshot, error) {
	snap, ok := l.Client(clientID)
	if !ok {
		return types.AccountSnapshot{}, fmt.Errorf("no dry book entry for %s", clientID)
	}
	return snap, nil
}

// ResetClients clears every client entry, keeping the mirrored main. Run as
// part of the worker's stop cleanup so the next start reseeds fresh.
func (l *Ledger) ResetClients() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.load()
	b.Clients = make(map[string]types.AccountSnapshot)
	return l.save(b)
}

// ApplyFills books simulated fills into a client's dry snapshot: buys raise
// the position and recompute its average price, sells shrink or remove it,
// and cash moves by the filled notional. Equity is recomputed as cash plus
// market value.
func (l *Ledger) ApplyFills(clientID string, fills []types.OrderResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.load()
	snap, ok := b.Clients[clientID]
	if !ok {
		return fmt.Errorf("no dry book entry for %s", clientID)
	}

	positions := make(map[string]types.Position, len(snap.Positions))
	for _, p := range snap.Positions {
		positions[p.Symbol] = p
	}
	cash := snap.Balances.CashBalance

	for _, fill := range fills {
		notional := float64(fill.Quantity) * fill.Price
		switch fill.Action {
		case types.ActionBuy:
			pos, had := positions[fill.Symbol]
			if !had {
				pos = types.Position{Symbol: fill.Symbol, Side: types.SideLong, AveragePrice: fill.Price}
			}
			newQty := pos.Quantity + float64(fill.Quantity)
			pos.AveragePrice = averagePrice(pos.Quantity, pos.AveragePrice, float64(fill.Quantity), fill.Price)
			pos.Quantity = newQty
			pos.Price = fill.Price
			pos.MarketValue = newQty * fill.Price
			positions[fill.Symbol] = pos
			cash -= notional
		case types.ActionSell:
			pos, had := positions[fill.Symbol]
			if !had {
				continue
			}
			pos.Quantity -= float64(fill.Quantity)
			if pos.Quantity <= 0 {
				delete(positions, fill.Symbol)
			} else {
				pos.Price = fill.Price
				pos.MarketValue = pos.Quantity * fill.Price
				positions[fill.Symbol] = pos
			}
			cash += notional
		}
	}

	symbols := make([]string, 0, len(positions))
	for sym := range positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	snap.Positions = make([]types.Position, 0, len(symbols))
	positionsValue := 0.0
	for _, sym := range symbols {
		p := positions[sym]
		positionsValue += p.MarketValue
		snap.Positions = append(snap.Positions, p)
	}
	snap.Balances.CashBalance = cash
	snap.Balances.PositionsValue = positionsValue
	snap.Balances.LiquidationValue = cash + positionsValue
	snap.Balances.AvailableFunds = cash
	snap.FetchedAt = time.Now()

	b.Clients[clientID] = snap
	return l.save(b)
}

// averagePrice recomputes a weighted average entry price, rounded to four
// decimal places.
func averagePrice(oldQty, oldAvg, addQty, price float64) float64 {
	total := oldQty + addQty
	if total <= 0 {
		return price
	}
	oldCost := decimal.NewFromFloat(oldQty).Mul(decimal.NewFromFloat(oldAvg))
	addCost := decimal.NewFromFloat(addQty).Mul(decimal.NewFromFloat(price))
	avg := oldCost.Add(addCost).Div(decimal.NewFromFloat(total))
	out, _ := avg.Round(4).Float64()
	return out
}
