package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/quantfold/predictbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name     string
	err      error
	titles   []string
	messages []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifyEventFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventFill}, discardLogger())

	if err := n.Notify(context.Background(), EventFill, "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(context.Background(), EventScan, "t", "m"); err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Errorf("sender received %d messages, want 1 (scan filtered out)", len(sender.titles))
	}
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	for _, event := range []string{EventFill, EventRiskAction, EventScan, EventError} {
		if err := n.Notify(context.Background(), event, "t", "m"); err != nil {
			t.Fatalf("Notify %s: %v", event, err)
		}
	}
	if len(sender.titles) != 4 {
		t.Errorf("sender received %d messages, want 4", len(sender.titles))
	}
}

func TestDispatchSurvivesDeadChannel(t *testing.T) {
	dead := &fakeSender{name: "dead", err: errors.New("webhook gone")}
	alive := &fakeSender{name: "alive"}
	n := NewNotifier([]Sender{dead, alive}, nil, discardLogger())

	err := n.Notify(context.Background(), EventFill, "t", "m")
	if err == nil {
		t.Fatal("expected aggregate error from dead sender")
	}
	if !strings.Contains(err.Error(), "dead") {
		t.Errorf("error %q does not name the failed sender", err)
	}
	// The healthy channel still got the message.
	if len(alive.titles) != 1 {
		t.Errorf("alive sender received %d messages, want 1", len(alive.titles))
	}
}

func TestNotifyFillFormatting(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	placed := domain.PlacedOrder{
		Status:   domain.PlacedOrderLive,
		TokenID:  "71321045679252212594626385532706912750332",
		Side:     domain.OrderSideBuy,
		Price:    0.57,
		SizeUSD:  50,
		Strategy: "prediction-markets",
	}
	if err := n.NotifyFill(context.Background(), placed); err != nil {
		t.Fatalf("NotifyFill: %v", err)
	}

	if sender.titles[0] != "Order live" {
		t.Errorf("title = %q", sender.titles[0])
	}
	msg := sender.messages[0]
	if !strings.Contains(msg, "BUY") || !strings.Contains(msg, "$50.00") || !strings.Contains(msg, "0.570") {
		t.Errorf("message = %q", msg)
	}
	// Long token ids are truncated for readability.
	if strings.Contains(msg, placed.TokenID) {
		t.Errorf("message %q carries the full token id", msg)
	}
}

func TestNotifyRiskActionFormatting(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	action := domain.RiskAction{
		Type:         domain.ActionStopLoss,
		PositionID:   "pos-1",
		Asset:        "tok-1",
		Strategy:     "prediction-markets",
		Urgency:      domain.UrgencyCritical,
		Reason:       "drawdown 65% breaches stop threshold",
		CostBasis:    100,
		CurrentValue: 35,
	}
	if err := n.NotifyRiskAction(context.Background(), action); err != nil {
		t.Fatalf("NotifyRiskAction: %v", err)
	}

	if sender.titles[0] != "Risk: stop_loss (critical)" {
		t.Errorf("title = %q", sender.titles[0])
	}
	if !strings.Contains(sender.messages[0], "drawdown 65%") {
		t.Errorf("message = %q", sender.messages[0])
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(abc) = %q", got)
	}
	long := "0123456789abcdef"
	if got := shortID(long); got != "0123456789ab…" {
		t.Errorf("shortID = %q", got)
	}
}
