package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

// Channel and stream names, relative to KeyPrefix.
const (
	ChannelBookPrefix = "book:"
	ChannelSignal     = "signal"
	ChannelBet        = "bet"
	StreamIntents     = "intents"
)

const (
	publishTimeout = 500 * time.Millisecond
	publishQueue   = 256
)

type message struct {
	target string
	stream bool
	body   []byte
}

// Publisher fans snapshots out to a SignalBus from its own goroutine.
// Enqueueing never blocks; messages are dropped when the queue is full.
type Publisher struct {
	bus     domain.SignalBus
	queue   chan message
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewPublisher creates a Publisher. Run must be started for anything to be
// sent.
func NewPublisher(bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		queue:  make(chan message, publishQueue),
		logger: logger.With("component", "app"),
	}
}

// Run sends queued messages until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-p.queue:
			p.send(ctx, m)
		}
	}
}

func (p *Publisher) send(ctx context.Context, m message) {
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	var err error
	if m.stream {
		err = p.bus.StreamAppend(cctx, m.target, m.body)
	} else {
		err = p.bus.Publish(cctx, m.target, m.body)
	}
	if err != nil && ctx.Err() == nil {
		p.logger.Debug("publish failed", "target", m.target, "error", err)
	}
}

// RunSignal publishes src's snapshot every interval until ctx is cancelled.
func (p *Publisher) RunSignal(ctx context.Context, src domain.SignalSource, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.PublishSignal(src.Snapshot())
		}
	}
}

// Dropped returns how many messages were discarded on a full queue.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// PublishBook queues a book snapshot on book:<token>.
func (p *Publisher) PublishBook(s domain.BookSnapshot) {
	p.enqueue(ChannelBookPrefix+s.TokenID, false, s)
}

// PublishSignal queues a signal snapshot.
func (p *Publisher) PublishSignal(s domain.SignalSnapshot) {
	p.enqueue(ChannelSignal, false, s)
}

// StateChanged publishes the bet state.
func (p *Publisher) StateChanged(bet domain.BetState) {
	p.enqueue(ChannelBet, false, bet)
}

// IntentDone appends the executed intent to the intent stream.
func (p *Publisher) IntentDone(rec domain.IntentRecord) {
	p.enqueue(StreamIntents, true, NewIntentPayload(rec))
}

func (p *Publisher) enqueue(target string, stream bool, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		p.logger.Debug("publish encode failed", "target", target, "error", err)
		return
	}
	select {
	case p.queue <- message{target: target, stream: stream, body: body}:
	default:
		p.dropped.Add(1)
	}
}

// IntentPayload is the wire form of an executed intent.
type IntentPayload struct {
	ID         string    `json:"id"`
	WindowSlug string    `json:"window_slug"`
	Reason     string    `json:"reason"`
	Outcome    string    `json:"outcome"`
	TokenID    string    `json:"token_id"`
	Price      float64   `json:"price"`
	AmountUSDC float64   `json:"amount_usdc"`
	Remaining  float64   `json:"remaining"`
	Status     string    `json:"status"`
	OrderID    string    `json:"order_id,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	DryRun     bool      `json:"dry_run"`
	LatencyMS  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewIntentPayload flattens rec.
func NewIntentPayload(rec domain.IntentRecord) IntentPayload {
	return IntentPayload{
		ID:         rec.Intent.ID,
		WindowSlug: rec.Intent.WindowSlug,
		Reason:     string(rec.Intent.Reason),
		Outcome:    string(rec.Intent.Outcome),
		TokenID:    rec.Intent.TokenID,
		Price:      rec.Intent.Price,
		AmountUSDC: rec.Intent.AmountUSDC,
		Remaining:  rec.Intent.Remaining,
		Status:     string(rec.Outcome.Status),
		OrderID:    rec.Outcome.OrderID,
		Cause:      rec.Outcome.Reason(),
		DryRun:     rec.DryRun,
		LatencyMS:  rec.Outcome.Latency.Milliseconds(),
		CreatedAt:  rec.Intent.CreatedAt,
	}
}
