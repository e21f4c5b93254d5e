// Package portfolio tracks the simulated account: available and reserved
// balances of one asset and one currency, plus the executed trade history.
//
// Resting orders lock what they may spend:
//   - long:  currency reserved += price x amount x (1 + fee rate)
//   - short: asset reserved    += amount
//
// A fill moves value out of the reservation and credits the other side in one
// Settle call. A cancel returns the unused reservation with Release.
package portfolio

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	apperrors "github.com/ducminhle1904/paper-exchange/internal/errors"
	"github.com/ducminhle1904/paper-exchange/pkg/types"
)

const component = "ledger"

// Resource names one side of the account
type Resource string

const (
	ResourceAsset    Resource = "asset"
	ResourceCurrency Resource = "currency"
)

// Balances is a snapshot of the account
type Balances struct {
	AssetAvailable    decimal.Decimal `json:"assetAvailable"`
	AssetReserved     decimal.Decimal `json:"assetReserved"`
	CurrencyAvailable decimal.Decimal `json:"currencyAvailable"`
	CurrencyReserved  decimal.Decimal `json:"currencyReserved"`
}

// Asset returns available plus reserved asset
func (b Balances) Asset() decimal.Decimal {
	return b.AssetAvailable.Add(b.AssetReserved)
}

// Currency returns available plus reserved currency
func (b Balances) Currency() decimal.Decimal {
	return b.CurrencyAvailable.Add(b.CurrencyReserved)
}

// Value marks the whole account to market in currency
func (b Balances) Value(price decimal.Decimal) decimal.Decimal {
	return b.Currency().Add(b.Asset().Mul(price))
}

func (b Balances) valid() bool {
	return !b.AssetAvailable.IsNegative() && !b.AssetReserved.IsNegative() &&
		!b.CurrencyAvailable.IsNegative() && !b.CurrencyReserved.IsNegative()
}

// Settlement is the balance change caused by one fill. Deltas are signed.
type Settlement struct {
	AssetAvailable    decimal.Decimal
	AssetReserved     decimal.Decimal
	CurrencyAvailable decimal.Decimal
	CurrencyReserved  decimal.Decimal
	Trade             types.FilledTrade
}

// Ledger holds the account state. Reads are safe from other goroutines;
// mutations are expected from a single owner.
type Ledger struct {
	mu       sync.RWMutex
	balances Balances
	trades   []types.FilledTrade
}

// NewLedger creates a ledger with the given available balances
func NewLedger(asset, currency decimal.Decimal) (*Ledger, error) {
	if asset.IsNegative() || currency.IsNegative() {
		return nil, apperrors.NewConfigurationError(component, "NewLedger",
			fmt.Sprintf("initial balances must not be negative (asset=%s currency=%s)", asset, currency))
	}
	return &Ledger{
		balances: Balances{
			AssetAvailable:    asset,
			CurrencyAvailable: currency,
		},
		trades: make([]types.FilledTrade, 0),
	}, nil
}

// Available returns the unreserved balance of r
func (l *Ledger) Available(r Resource) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if r == ResourceAsset {
		return l.balances.AssetAvailable
	}
	return l.balances.CurrencyAvailable
}

// Reserve moves amount of r from available to reserved
func (l *Ledger) Reserve(r Resource, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.NewValidationError(component, "Reserve",
			fmt.Sprintf("reserve amount must not be negative, got %s", amount))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	available, reserved := l.slots(r)
	if available.LessThan(amount) {
		return apperrors.NewInsufficientFundsError(component, "Reserve",
			fmt.Sprintf("insufficient %s: need %s, available %s", r, amount, *available)).
			WithContext("resource", string(r))
	}
	*available = available.Sub(amount)
	*reserved = reserved.Add(amount)
	return nil
}

// Release moves amount of r from reserved back to available
func (l *Ledger) Release(r Resource, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.NewValidationError(component, "Release",
			fmt.Sprintf("release amount must not be negative, got %s", amount))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	available, reserved := l.slots(r)
	if reserved.LessThan(amount) {
		return apperrors.NewValidationError(component, "Release",
			fmt.Sprintf("cannot release %s %s, only %s reserved", amount, r, *reserved))
	}
	*reserved = reserved.Sub(amount)
	*available = available.Add(amount)
	return nil
}

// Settle applies the deltas of one fill and records its trade. Either every
// delta is applied or none is.
func (l *Ledger) Settle(s Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := Balances{
		AssetAvailable:    l.balances.AssetAvailable.Add(s.AssetAvailable),
		AssetReserved:     l.balances.AssetReserved.Add(s.AssetReserved),
		CurrencyAvailable: l.balances.CurrencyAvailable.Add(s.CurrencyAvailable),
		CurrencyReserved:  l.balances.CurrencyReserved.Add(s.CurrencyReserved),
	}
	if !next.valid() {
		return apperrors.NewValidationError(component, "Settle",
			"settlement would leave a negative balance").
			WithContext("order_id", s.Trade.OrderID)
	}

	l.balances = next
	l.trades = append(l.trades, s.Trade)
	return nil
}

// Balances returns a snapshot of the account
func (l *Ledger) Balances() Balances {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances
}

// TradeHistory returns a copy of every recorded fill in execution order
func (l *Ledger) TradeHistory() []types.FilledTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.FilledTrade, len(l.trades))
	copy(out, l.trades)
	return out
}

// TradeCount returns the number of recorded fills
func (l *Ledger) TradeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Portfolio reports the account as named balances, asset first
func (l *Ledger) Portfolio(assetName, currencyName string) []types.Balance {
	b := l.Balances()
	return []types.Balance{
		{
			Asset:  assetName,
			Free:   b.AssetAvailable.InexactFloat64(),
			Locked: b.AssetReserved.InexactFloat64(),
		},
		{
			Asset:  currencyName,
			Free:   b.CurrencyAvailable.InexactFloat64(),
			Locked: b.CurrencyReserved.InexactFloat64(),
		},
	}
}

// slots returns pointers to the available and reserved balance of r.
// Must be called with the write lock held.
func (l *Ledger) slots(r Resource) (*decimal.Decimal, *decimal.Decimal) {
	if r == ResourceAsset {
		return &l.balances.AssetAvailable, &l.balances.AssetReserved
	}
	return &l.balances.CurrencyAvailable, &l.balances.CurrencyReserved
}
