package polymarket

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/wingertjp/polymarket/internal/crypto"
	"github.com/wingertjp/polymarket/internal/domain"
)

const (
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// DefaultExchange is the CTF exchange on Polygon mainnet.
	DefaultExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	// fallbackAsk is the marketable price used when the ask side is empty.
	fallbackAsk = 0.99
)

// SignedOrder is an exchange order with its EIP-712 signature.
type SignedOrder struct {
	crypto.Order
	Signature string
}

// Request wraps the signed order in the POST /order body. owner is the L2
// API key.
func (o *SignedOrder) Request(owner string, orderType domain.OrderType) (NewOrderRequest, error) {
	salt, err := strconv.ParseInt(o.Salt, 10, 64)
	if err != nil {
		return NewOrderRequest{}, fmt.Errorf("polymarket/order: salt %q: %w", o.Salt, err)
	}
	side := string(domain.OrderSideBuy)
	if o.Side != 0 {
		side = string(domain.OrderSideSell)
	}
	return NewOrderRequest{
		Order: OrderPayload{
			Salt:          salt,
			Maker:         o.Maker,
			Signer:        o.Signer,
			Taker:         o.Taker,
			TokenID:       o.TokenID,
			MakerAmount:   o.MakerAmount,
			TakerAmount:   o.TakerAmount,
			Expiration:    o.Expiration,
			Nonce:         o.Nonce,
			FeeRateBps:    o.FeeRateBps,
			Side:          side,
			SignatureType: o.SignatureType,
			Signature:     o.Signature,
		},
		Owner:     owner,
		OrderType: string(orderType),
	}, nil
}

// OrderBuilder turns prices and sizes into signed exchange orders.
type OrderBuilder struct {
	signer   *crypto.Signer
	exchange string
	funder   string
	sigType  uint8
	tick     float64
	salt     func() (string, error)
}

// NewOrderBuilder creates an OrderBuilder. funder may be empty, in which
// case the signer's address is the maker.
func NewOrderBuilder(signer *crypto.Signer, exchange, funder string, sigType uint8, tick float64) *OrderBuilder {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if tick <= 0 {
		tick = 0.01
	}
	return &OrderBuilder{
		signer:   signer,
		exchange: exchange,
		funder:   strings.TrimSpace(funder),
		sigType:  sigType,
		tick:     tick,
		salt:     randomSalt,
	}
}

// Tick returns the price increment orders are rounded to.
func (b *OrderBuilder) Tick() float64 { return b.tick }

// MarketBuy builds a marketable BUY spending usdc at bestAsk. A missing ask
// (zero) falls back to 0.99 so the order still crosses. The price is rounded
// up to tick, the market's tick size; tick <= 0 uses the builder's default.
func (b *OrderBuilder) MarketBuy(tokenID string, usdc, bestAsk, tick float64) (*SignedOrder, error) {
	if usdc <= 0 {
		return nil, fmt.Errorf("polymarket/order: amount must be positive, got %v", usdc)
	}
	if tick <= 0 || tick >= 1 {
		tick = b.tick
	}
	price := bestAsk
	if price <= 0 || price >= 1 {
		price = fallbackAsk
	}
	price = CeilToTick(price, tick)

	maker := toMicro(usdc)
	taker := toMicro(floorDecimals(usdc/price, 2))
	if taker <= 0 {
		return nil, fmt.Errorf("polymarket/order: amount %v too small at price %v", usdc, price)
	}
	return b.sign(tokenID, 0, maker, taker)
}

// Limit builds a resting order of size shares at price.
func (b *OrderBuilder) Limit(o domain.LimitOrder) (*SignedOrder, error) {
	size := floorDecimals(o.Size, 2)
	if size <= 0 {
		return nil, fmt.Errorf("polymarket/order: size must be positive, got %v", o.Size)
	}
	price := RoundToTick(o.Price, b.tick)
	notional := toMicro(size * price)
	shares := toMicro(size)

	switch o.Side {
	case domain.OrderSideBuy:
		return b.sign(o.TokenID, 0, notional, shares)
	case domain.OrderSideSell:
		return b.sign(o.TokenID, 1, shares, notional)
	default:
		return nil, fmt.Errorf("polymarket/order: invalid side %q", o.Side)
	}
}

func (b *OrderBuilder) sign(tokenID string, side uint8, maker, taker int64) (*SignedOrder, error) {
	if strings.TrimSpace(tokenID) == "" {
		return nil, fmt.Errorf("polymarket/order: token id is required")
	}
	salt, err := b.salt()
	if err != nil {
		return nil, err
	}
	signerAddr := b.signer.Address().Hex()
	makerAddr := b.funder
	if makerAddr == "" {
		makerAddr = signerAddr
	}

	o := crypto.Order{
		Salt:          salt,
		Maker:         makerAddr,
		Signer:        signerAddr,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   strconv.FormatInt(maker, 10),
		TakerAmount:   strconv.FormatInt(taker, 10),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: b.sigType,
	}
	sig, err := b.signer.SignOrder(o, b.exchange)
	if err != nil {
		return nil, fmt.Errorf("polymarket/order: %w", err)
	}
	return &SignedOrder{Order: o, Signature: sig}, nil
}

// RoundToTick rounds price to the nearest tick and clamps it into
// [tick, 1-tick].
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return clampTick(math.Round(price/tick)*tick, tick)
}

// CeilToTick rounds price up to the next tick and clamps it into
// [tick, 1-tick]. A buy priced this way never sits below the ask it targets.
func CeilToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return clampTick(math.Ceil(price/tick-1e-9)*tick, tick)
}

func clampTick(p, tick float64) float64 {
	dec := tickDecimals(tick)
	p = math.Round(p*math.Pow10(dec)) / math.Pow10(dec)
	lo, hi := tick, math.Round((1-tick)*math.Pow10(dec))/math.Pow10(dec)
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}

func tickDecimals(tick float64) int {
	for d := 0; d < 8; d++ {
		scaled := tick * math.Pow10(d)
		if math.Abs(scaled-math.Round(scaled)) < 1e-9 {
			return d
		}
	}
	return 8
}

func floorDecimals(v float64, d int) float64 {
	f := math.Pow10(d)
	return math.Floor(v*f+1e-9) / f
}

func toMicro(v float64) int64 {
	return int64(math.Round(v * 1e6))
}

// randomSalt stays within the JS safe-integer range; the venue parses the
// salt as a JSON number.
func randomSalt() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000_000))
	if err != nil {
		return "", fmt.Errorf("polymarket/order: salt: %w", err)
	}
	return n.String(), nil
}
