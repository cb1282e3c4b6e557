package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wingertjp/polymarket/internal/domain"
)

const alertTimeout = 5 * time.Second

// Alerts turns decision events into notifications. It satisfies
// decision.Observer; delivery runs on its own goroutine.
type Alerts struct {
	n *Notifier
}

// NewAlerts wraps n.
func NewAlerts(n *Notifier) *Alerts { return &Alerts{n: n} }

// IntentDone alerts FIRE for snipes and RESCUE for rescues.
func (a *Alerts) IntentDone(rec domain.IntentRecord) {
	event := EventFire
	if rec.Intent.Reason == domain.ReasonRescue {
		event = EventRescue
	}
	a.send(event, IntentTitle(rec), IntentMessage(rec))
}

// StateChanged is a no-op; settlement is reported through Settled.
func (a *Alerts) StateChanged(domain.BetState) {}

// Settled alerts WIN or LOSS for a window's bet.
func (a *Alerts) Settled(slug string, side domain.Outcome, won bool, pnl float64) {
	event := EventLoss
	if won {
		event = EventWin
	}
	a.send(event, fmt.Sprintf("%s %s", event, side), fmt.Sprintf("window %s\npnl %.4f USDC", slug, pnl))
}

// Redeemed alerts a completed redemption.
func (a *Alerts) Redeemed(conditionID, tx string, gained float64) {
	a.send(EventRedeemed, "REDEEMED", fmt.Sprintf("condition %s\ntx %s\n+%.4f USDC.e", conditionID, tx, gained))
}

func (a *Alerts) send(event, title, message string) {
	if !a.n.Enabled() || !a.n.Allows(event) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		_ = a.n.Notify(ctx, event, title, message)
	}()
}

// IntentTitle is the alert title for an executed intent.
func IntentTitle(rec domain.IntentRecord) string {
	title := fmt.Sprintf("%s %s %s", rec.Intent.Reason, rec.Intent.Outcome, rec.Outcome.Status)
	if rec.DryRun {
		title += " (dry run)"
	}
	return title
}

// IntentMessage is the alert body for an executed intent.
func IntentMessage(rec domain.IntentRecord) string {
	msg := fmt.Sprintf("window %s\namount %.2f USDC @ %.2f\nremaining %.1fs",
		rec.Intent.WindowSlug, rec.Intent.AmountUSDC, rec.Intent.Price, rec.Intent.Remaining)
	if cause := rec.Outcome.Reason(); cause != "" {
		msg += "\n" + cause
	}
	return msg
}
