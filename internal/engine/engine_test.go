package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quantfold/predictbot/internal/domain"
	"github.com/quantfold/predictbot/internal/platform/polymarket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExchange struct {
	result  polymarket.OrderResult
	err     error
	negRisk bool

	postCalls int
	lastType  string
	cancelled []string
}

func (f *fakeExchange) PostOrder(_ context.Context, _ domain.SignedOrder, orderType string) (polymarket.OrderResult, error) {
	f.postCalls++
	f.lastType = orderType
	return f.result, f.err
}

func (f *fakeExchange) CancelOrder(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) NegRisk(context.Context, string) (bool, error) { return f.negRisk, nil }
func (f *fakeExchange) FeeRateBps(context.Context, string) (int64, error) {
	return 0, nil
}

type fakeLimiter struct {
	allow bool
	err   error
	calls int
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	f.calls++
	return f.allow, f.err
}

type fakeAudit struct {
	events  []string
	details []map[string]any
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	f.details = append(f.details, detail)
	return nil
}

type fakeArchive struct {
	keys []string
}

func (f *fakeArchive) Put(_ context.Context, key string, _ []byte, _ string) error {
	f.keys = append(f.keys, key)
	return nil
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		Market: domain.Market{
			ConditionID: "0xcond",
			TickSize:    0.01,
		},
		Token:       domain.OutcomeToken{TokenID: "1234", Outcome: "Yes", Price: 0.57},
		Side:        domain.OrderSideBuy,
		MarketPrice: 0.57,
		StakeUSD:    50,
	}
}

func newTestEngine(t *testing.T, ex *fakeExchange, limiter domain.RateLimiter, audit *fakeAudit, archive *fakeArchive) *Engine {
	t.Helper()
	var auditStore domain.AuditStore
	if audit != nil {
		auditStore = audit
	}
	var blob domain.BlobWriter
	if archive != nil {
		blob = archive
	}
	return New(ex, newTestBuilder(t), nil, limiter, auditStore, blob, discardLogger())
}

func TestPlaceOrderSuccess(t *testing.T) {
	ex := &fakeExchange{result: polymarket.OrderResult{Success: true, OrderID: "ord-1", Status: "live"}}
	audit := &fakeAudit{}
	archive := &fakeArchive{}
	e := newTestEngine(t, ex, nil, audit, archive)

	placed, err := e.PlaceOrder(context.Background(), testOpportunity(), "prediction-markets")
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.OrderID != "ord-1" {
		t.Errorf("OrderID = %q, want ord-1", placed.OrderID)
	}
	if placed.Status != domain.PlacedOrderLive {
		t.Errorf("Status = %q, want live", placed.Status)
	}
	if placed.Failed() {
		t.Error("Failed() = true for successful placement")
	}
	if ex.lastType != defaultOrderType {
		t.Errorf("order type = %q, want %q", ex.lastType, defaultOrderType)
	}

	if len(audit.events) != 1 || audit.events[0] != "order_placed" {
		t.Fatalf("audit events = %v, want one order_placed", audit.events)
	}
	if audit.details[0]["strategy"] != "prediction-markets" {
		t.Errorf("audit strategy = %v", audit.details[0]["strategy"])
	}
	if len(archive.keys) != 1 || !strings.HasPrefix(archive.keys[0], "orders/") || !strings.HasSuffix(archive.keys[0], ".json") {
		t.Errorf("archive keys = %v, want one orders/...json key", archive.keys)
	}
}

func TestPlaceOrderMatchedStatus(t *testing.T) {
	ex := &fakeExchange{result: polymarket.OrderResult{Success: true, OrderID: "ord-2", Status: "matched"}}
	e := newTestEngine(t, ex, nil, nil, nil)

	placed, err := e.PlaceOrder(context.Background(), testOpportunity(), "s")
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.Status != domain.PlacedOrderMatched {
		t.Errorf("Status = %q, want matched", placed.Status)
	}
}

func TestPlaceOrderExchangeRejection(t *testing.T) {
	// A rejection of a well-formed order is an ordinary outcome: the error
	// is nil and the audit record carries the rejection.
	ex := &fakeExchange{result: polymarket.OrderResult{Success: false, Message: "not enough balance"}}
	audit := &fakeAudit{}
	e := newTestEngine(t, ex, nil, audit, nil)

	placed, err := e.PlaceOrder(context.Background(), testOpportunity(), "s")
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !placed.Failed() {
		t.Error("Failed() = false for rejected order")
	}
	if placed.Message != "not enough balance" {
		t.Errorf("Message = %q", placed.Message)
	}
	if len(audit.events) != 1 {
		t.Errorf("audit events = %v, rejection must still be recorded", audit.events)
	}
}

func TestPlaceOrderTransportError(t *testing.T) {
	ex := &fakeExchange{err: errors.New("connection reset")}
	e := newTestEngine(t, ex, nil, nil, nil)

	placed, err := e.PlaceOrder(context.Background(), testOpportunity(), "s")
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.Status != domain.PlacedOrderError {
		t.Errorf("Status = %q, want error", placed.Status)
	}
	if !strings.Contains(placed.Message, "connection reset") {
		t.Errorf("Message = %q, want transport error text", placed.Message)
	}
}

func TestPlaceOrderRateLimited(t *testing.T) {
	ex := &fakeExchange{result: polymarket.OrderResult{Success: true}}
	limiter := &fakeLimiter{allow: false}
	e := newTestEngine(t, ex, limiter, nil, nil)

	_, err := e.PlaceOrder(context.Background(), testOpportunity(), "s")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if ex.postCalls != 0 {
		t.Errorf("exchange called %d times while rate limited", ex.postCalls)
	}
}

func TestPlaceOrderBrokenLimiterProceeds(t *testing.T) {
	ex := &fakeExchange{result: polymarket.OrderResult{Success: true, OrderID: "ord-3", Status: "live"}}
	limiter := &fakeLimiter{err: errors.New("redis down")}
	e := newTestEngine(t, ex, limiter, nil, nil)

	placed, err := e.PlaceOrder(context.Background(), testOpportunity(), "s")
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.OrderID != "ord-3" {
		t.Errorf("OrderID = %q, a broken limiter must not halt trading", placed.OrderID)
	}
}

func TestCancelOrder(t *testing.T) {
	ex := &fakeExchange{}
	e := newTestEngine(t, ex, nil, nil, nil)

	if err := e.CancelOrder(context.Background(), "ord-9"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if len(ex.cancelled) != 1 || ex.cancelled[0] != "ord-9" {
		t.Errorf("cancelled = %v", ex.cancelled)
	}
}
