package types

import "time"

// SchemaVersion selects the candle field set.
type SchemaVersion int

const (
	SchemaV1 SchemaVersion = 1
	SchemaV2 SchemaVersion = 2
)

// Valid reports whether v is a known schema version
func (v SchemaVersion) Valid() bool {
	return v == SchemaV1 || v == SchemaV2
}

// Trade is a single raw execution reported by an exchange
type Trade struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"date"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
}

// TradeBatch is one delivery of trades, ordered by timestamp.
// Lag is the observed exchange lag in seconds for the batch.
type TradeBatch struct {
	Trades []Trade
	Lag    int
}

// OrderFlow holds the version 2 candle fields.
type OrderFlow struct {
	Version   SchemaVersion `json:"version"`
	BuyVolume float64       `json:"buyVolume"`
	BuyTrades int           `json:"buyTrades"`
	Lag       int           `json:"lag"`
	Raw       []Trade       `json:"raw"`
}

// NewOrderFlow returns an empty version 2 field set
func NewOrderFlow(lag int) *OrderFlow {
	return &OrderFlow{
		Version: SchemaV2,
		Lag:     lag,
		Raw:     []Trade{},
	}
}

// Candle is an OHLCV bar. A nil OrderFlow means schema version 1.
type Candle struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	VWP    float64   `json:"vwp"`
	Trades int       `json:"trades"`

	*OrderFlow
}

// Schema returns the schema version the candle was built with
func (c Candle) Schema() SchemaVersion {
	if c.OrderFlow != nil {
		return SchemaV2
	}
	return SchemaV1
}

// Clone returns a copy that shares no mutable state with c
func (c Candle) Clone() Candle {
	if c.OrderFlow == nil {
		return c
	}
	flow := *c.OrderFlow
	flow.Raw = append([]Trade(nil), c.OrderFlow.Raw...)
	c.OrderFlow = &flow
	return c
}

type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}
