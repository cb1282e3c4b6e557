package domain

import "context"

// OrderExecutor turns an order intent into a fill outcome. The live and
// simulated variants are interchangeable behind this interface.
type OrderExecutor interface {
	PlaceFOKBuy(ctx context.Context, intent OrderIntent) OrderOutcome
}

// Quoter places and clears resting limit orders for the market-maker.
type Quoter interface {
	PostLimit(ctx context.Context, order LimitOrder) (string, error)
	CancelAll(ctx context.Context) error
}

// BookSource exposes read-only snapshots of the current window's books.
type BookSource interface {
	Book(o Outcome) BookSnapshot
}

// SignalSource exposes the latest signal snapshot.
type SignalSource interface {
	Snapshot() SignalSnapshot
}

// SignalHandler receives decoded secondary-venue events in arrival order.
type SignalHandler interface {
	OnDepth(DepthUpdate)
	OnTrade(TradePrint)
	OnCandleOpen(open float64)
	OnDisconnect(err error)
}
