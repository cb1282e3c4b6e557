package polymarket

import (
	"context"
	"fmt"

	"github.com/wingertjp/polymarket/internal/domain"
)

// Discovery resolves a window slug into venue identifiers: the Gamma event
// supplies the condition id, the CLOB market supplies tradability and the
// Up/Down token ids.
type Discovery struct {
	gamma *GammaClient
	clob  *ClobClient
}

// NewDiscovery creates a Discovery.
func NewDiscovery(gamma *GammaClient, clob *ClobClient) *Discovery {
	return &Discovery{gamma: gamma, clob: clob}
}

// Resolve returns the window's identifiers. A listed market that is not yet
// accepting orders yields ErrMarketNotReady.
func (d *Discovery) Resolve(ctx context.Context, slug string) (domain.MarketWindow, error) {
	ev, err := d.gamma.EventBySlug(ctx, slug)
	if err != nil {
		return domain.MarketWindow{}, err
	}
	cid := ev.Markets[0].ConditionID
	if cid == "" {
		return domain.MarketWindow{}, fmt.Errorf("polymarket: %s has no condition id: %w", slug, domain.ErrMarketNotFound)
	}

	m, err := d.clob.Market(ctx, cid)
	if err != nil {
		return domain.MarketWindow{}, err
	}
	if !m.EnableOrderBook || !m.AcceptingOrders {
		return domain.MarketWindow{}, fmt.Errorf("polymarket: %s: %w", slug, domain.ErrMarketNotReady)
	}

	up, down := m.TokenFor(domain.OutcomeUp), m.TokenFor(domain.OutcomeDown)
	if up == "" || down == "" {
		return domain.MarketWindow{}, fmt.Errorf("polymarket: %s: token ids missing: %w", slug, domain.ErrMarketNotReady)
	}

	return domain.MarketWindow{
		Slug:        slug,
		Title:       ev.Title,
		ConditionID: cid,
		UpTokenID:   up,
		DownTokenID: down,
		TickSize:    m.MinimumTickSize,
	}, nil
}
