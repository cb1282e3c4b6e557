package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingertjp/polymarket/internal/crypto"
	"github.com/wingertjp/polymarket/internal/decision"
	"github.com/wingertjp/polymarket/internal/domain"
	"github.com/wingertjp/polymarket/internal/executor"
	"github.com/wingertjp/polymarket/internal/onchain"
	"github.com/wingertjp/polymarket/internal/platform/binance"
	"github.com/wingertjp/polymarket/internal/platform/polymarket"
	"github.com/wingertjp/polymarket/internal/server"
	"github.com/wingertjp/polymarket/internal/server/ws"
	"github.com/wingertjp/polymarket/internal/signal"
	"github.com/wingertjp/polymarket/internal/window"
)

const signalPublishEvery = time.Second

// venue holds the REST clients. signer is nil for unauthenticated modes.
type venue struct {
	gamma  *polymarket.GammaClient
	clob   *polymarket.ClobClient
	signer *crypto.Signer
}

// newVenue builds the Gamma and CLOB clients. With auth it loads the wallet
// key and derives L2 API credentials.
func (a *App) newVenue(ctx context.Context, auth bool) (*venue, error) {
	pm := a.cfg.Polymarket
	v := &venue{gamma: polymarket.NewGammaClient(pm.GammaHost, pm.RequestsPerSecond)}

	if auth {
		if err := a.cfg.RequireWallet(); err != nil {
			return nil, err
		}
		key, err := crypto.KeySource{
			Raw:      a.cfg.Wallet.PrivateKey,
			Path:     a.cfg.Wallet.EncryptedKeyPath,
			Password: a.cfg.Wallet.KeyPassword,
		}.Resolve()
		if err != nil {
			return nil, fmt.Errorf("app: wallet key: %w", err)
		}
		if v.signer, err = crypto.NewSigner(key, int64(pm.ChainID)); err != nil {
			return nil, err
		}
	}

	v.clob = polymarket.NewClobClient(pm.ClobHost, pm.RequestsPerSecond, v.signer)
	if auth {
		if _, err := v.clob.DeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("app: derive api key: %w", err)
		}
		a.logger.Info("authenticated", slog.String("address", v.signer.Address().Hex()))
	}
	return v, nil
}

func (a *App) newManager(v *venue) *window.Manager {
	wc := a.cfg.Window
	return window.NewManager(window.Config{
		MarketSlug:  wc.MarketSlug,
		Length:      wc.Length.Duration,
		Retry:       wc.DiscoveryRetry.Duration,
		MaxAttempts: wc.DiscoveryMaxAttempts,
		Tick:        wc.Tick.Duration,
	}, polymarket.NewDiscovery(v.gamma, v.clob), a.logger)
}

// newLive builds the live executor, which also quotes for the market-maker.
func (a *App) newLive(v *venue) *executor.Live {
	pm := a.cfg.Polymarket
	builder := polymarket.NewOrderBuilder(v.signer, pm.ExchangeAddress, a.cfg.Wallet.FunderAddress,
		uint8(a.cfg.Wallet.SignatureType), pm.TickSize)
	return executor.NewLive(builder, v.clob, pm.OrderTimeout.Duration, a.logger)
}

// startSignal runs the secondary feed and its fusion worker for the process
// lifetime.
func (a *App) startSignal(ctx context.Context, g *errgroup.Group, deps *Dependencies) *signal.Fusion {
	sc := a.cfg.Signal
	f := signal.New(signal.Config{
		OBIThreshold:  sc.OBIThreshold,
		Rule:          domain.DirectionRule(sc.Rule),
		Levels:        sc.Levels,
		ProcessNoise:  sc.ProcessNoise,
		MeasureNoise:  sc.MeasurementNoise,
		VelocityAlpha: sc.VelocityAlpha,
		StaleAfter:    sc.StaleAfter.Duration,
	}, a.logger)
	stream := binance.NewStream(a.cfg.Binance.StreamURL, 3*sc.StaleAfter.Duration, a.logger)
	g.Go(func() error { return f.Run(ctx, stream) })

	a.signal = f
	if deps.Publisher != nil {
		g.Go(func() error { return deps.Publisher.RunSignal(ctx, f, signalPublishEvery) })
	}
	return f
}

// startInfra runs the Redis publisher, the Postgres journal and, when
// enabled, the HTTP server with its WebSocket hub.
func (a *App) startInfra(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Publisher != nil {
		g.Go(func() error { return deps.Publisher.Run(ctx) })
	}
	if deps.Journal != nil {
		g.Go(func() error { return deps.Journal.Run(ctx) })
	}
	if !a.cfg.Server.Enabled {
		return
	}
	hub := ws.NewHub(deps.Bus, a, a.logger, ws.Config{})
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Deps{
		Status:  a,
		Bets:    deps.Bets,
		Limiter: deps.Limiter,
		Hub:     hub,
	}, a.logger)
	g.Go(func() error { return srv.Run(ctx) })
}

// newRedeemer dials the RPC node and builds a Redeemer signing with the
// venue's wallet key.
func (a *App) newRedeemer(ctx context.Context, v *venue, deps *Dependencies) (*onchain.Redeemer, error) {
	ch := a.cfg.Chain
	client, err := onchain.Dial(ctx, ch.RPCURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	ctf := onchain.NewCTF(client, ch.CTFAddress, ch.USDCAddress)
	r := onchain.NewRedeemer(client, ctf, v.clob, v.signer.PrivateKey(), onchain.RedeemerConfig{
		ChainID:        int64(a.cfg.Polymarket.ChainID),
		GasLimit:       ch.GasLimit,
		GasMultiplier:  ch.GasMultiplier,
		ReceiptTimeout: ch.ReceiptTimeout.Duration,
		ReceiptPoll:    ch.ReceiptPoll.Duration,
	}, a.logger)
	r.AddObserver(deps.Alerts)
	if deps.Journal != nil {
		r.AddObserver(deps.Journal)
	}
	return r, nil
}

func (a *App) decisionConfig() decision.Config {
	sc := a.cfg.Snipe
	order := make([]domain.Outcome, 0, len(sc.Order))
	for _, o := range sc.Order {
		order = append(order, domain.Outcome(o))
	}
	return decision.Config{
		SnipeAmount:        sc.Amount,
		SnipeProb:          sc.Prob,
		SnipeTime:          sc.Time.Duration,
		RescueMidThreshold: sc.RescueMidThreshold,
		RescueAmount:       sc.RescueAmount,
		RescueTime:         sc.RescueTime.Duration,
		Order:              order,
	}
}
