// Package notify fans operator alerts out to the configured channels. Risk
// actions and fills are formatted here so every channel renders the same
// message.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfold/predictbot/internal/domain"
)

// Event types the notifier understands.
const (
	EventFill       = "fill"
	EventRiskAction = "risk_action"
	EventScan       = "scan"
	EventError      = "error"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every sender, filtered by event type. An empty
// event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers a message when its event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyFill reports a successful order placement.
func (n *Notifier) NotifyFill(ctx context.Context, placed domain.PlacedOrder) error {
	title := fmt.Sprintf("Order %s", placed.Status)
	message := fmt.Sprintf("%s %s @ %.3f for $%.2f (%s)",
		placed.Side, shortID(placed.TokenID), placed.Price, placed.SizeUSD, placed.Strategy)
	return n.Notify(ctx, EventFill, title, message)
}

// NotifyRiskAction reports a risk action emitted by a price refresh.
func (n *Notifier) NotifyRiskAction(ctx context.Context, action domain.RiskAction) error {
	title := fmt.Sprintf("Risk: %s (%s)", action.Type, action.Urgency)
	message := fmt.Sprintf("position %s on %s: %s (basis $%.2f, now $%.2f)",
		shortID(action.PositionID), shortID(action.Asset), action.Reason,
		action.CostBasis, action.CurrentValue)
	return n.Notify(ctx, EventRiskAction, title, message)
}

// ----- Internal helpers -----

// dispatch delivers to every sender; one dead channel never blocks the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// shortID truncates long token and position ids for human-facing channels.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "…"
}
