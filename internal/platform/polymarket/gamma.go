package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

// DefaultGammaURL is the production Gamma API root.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// GammaClient is the read-only market metadata API.
type GammaClient struct {
	rest restClient
}

// NewGammaClient creates a Gamma client limited to rps requests per second.
func NewGammaClient(baseURL string, rps float64) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	return &GammaClient{rest: newRESTClient(baseURL, rps, 10*time.Second)}
}

// EventBySlug returns the event listed under slug. An empty result means
// the window has not been listed yet and yields ErrMarketNotFound.
func (g *GammaClient) EventBySlug(ctx context.Context, slug string) (APIEvent, error) {
	params := url.Values{}
	params.Set("slug", slug)

	var events []APIEvent
	if err := g.rest.getJSON(ctx, "/events?"+params.Encode(), nil, &events); err != nil {
		return APIEvent{}, fmt.Errorf("polymarket/gamma: events %s: %w", slug, err)
	}
	if len(events) == 0 || len(events[0].Markets) == 0 {
		return APIEvent{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrMarketNotFound, slug)
	}
	return events[0], nil
}
