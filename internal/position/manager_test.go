package position

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/quantfold/predictbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory PositionStore for tests.
type memStore struct {
	positions map[string]domain.Position
}

func newMemStore() *memStore {
	return &memStore{positions: make(map[string]domain.Position)}
}

func (s *memStore) GetOpen(_ context.Context, strategy string) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status != domain.PositionOpen {
			continue
		}
		if strategy != "" && p.Strategy != strategy {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) Upsert(_ context.Context, pos domain.Position) error {
	s.positions[pos.ID] = pos
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memStore) UpdatePrice(_ context.Context, id string, price, value float64) error {
	p, ok := s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.CurrentPrice = price
	p.CurrentValue = value
	p.UnrealizedPnL = value - p.CostBasis
	s.positions[id] = p
	return nil
}

func (s *memStore) Close(_ context.Context, id, txRef string, exitPrice, realizedPnL float64) error {
	p, ok := s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = domain.PositionClosed
	p.CurrentPrice = exitPrice
	p.RealizedPnL = realizedPnL
	if txRef != "" {
		p.TxHash = &txRef
	}
	s.positions[id] = p
	return nil
}

func (s *memStore) TotalRealizedPnL(context.Context) (float64, error) {
	var total float64
	for _, p := range s.positions {
		total += p.RealizedPnL
	}
	return total, nil
}

func openPosition(store *memStore, id, strategy, asset string, costBasis, size float64) domain.Position {
	pos := domain.Position{
		ID:           id,
		Strategy:     strategy,
		Asset:        asset,
		Status:       domain.PositionOpen,
		EntryPrice:   costBasis / size,
		CurrentPrice: costBasis / size,
		Size:         size,
		CostBasis:    costBasis,
		CurrentValue: costBasis,
		Metadata:     map[string]string{},
		OpenedAt:     time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	store.positions[id] = pos
	return pos
}

func TestCheckExposure(t *testing.T) {
	store := newMemStore()
	pos := openPosition(store, "p1", "prediction-markets", "tok-1", 100, 200)
	// Mark the position up so cost basis and current value diverge; the cap
	// is enforced against what the position is worth now.
	pos.CurrentPrice = 0.6
	pos.CurrentValue = 120
	store.positions[pos.ID] = pos
	m := NewManager(store, nil, discardLogger())

	// Cap is 15% of a $1000 portfolio = $150; $120 of current value open.
	check, err := m.CheckExposure(context.Background(), "prediction-markets", 25, 1000)
	if err != nil {
		t.Fatalf("CheckExposure: %v", err)
	}
	if !check.Allowed {
		t.Errorf("allowed = false for $25 under $30 headroom: %s", check.Reason)
	}
	if check.CapUSD != 150 || check.CurrentUSD != 120 || check.HeadroomUSD != 30 {
		t.Errorf("check = %+v", check)
	}

	check, err = m.CheckExposure(context.Background(), "prediction-markets", 40, 1000)
	if err != nil {
		t.Fatalf("CheckExposure: %v", err)
	}
	if check.Allowed {
		t.Error("allowed = true for $40 over $30 headroom")
	}
	if check.Reason == "" {
		t.Error("denial carries no reason")
	}
}

func TestCheckExposureAfterAppreciation(t *testing.T) {
	store := newMemStore()
	pos := openPosition(store, "p1", "prediction-markets", "tok-1", 100, 200)
	// $100 of cost basis now worth $150: the whole cap is consumed even
	// though the cost basis alone would leave $50 of room.
	pos.CurrentPrice = 0.75
	pos.CurrentValue = 150
	store.positions[pos.ID] = pos
	m := NewManager(store, nil, discardLogger())

	check, err := m.CheckExposure(context.Background(), "prediction-markets", 10, 1000)
	if err != nil {
		t.Fatalf("CheckExposure: %v", err)
	}
	if check.CurrentUSD != 150 {
		t.Errorf("CurrentUSD = %v, want 150 (current value)", check.CurrentUSD)
	}
	if check.Allowed {
		t.Error("allowed = true with the cap already filled by current value")
	}
}

func TestCheckExposureUnknownStrategy(t *testing.T) {
	m := NewManager(newMemStore(), nil, discardLogger())

	check, err := m.CheckExposure(context.Background(), "yolo", 10, 1000)
	if err != nil {
		t.Fatalf("CheckExposure: %v", err)
	}
	if check.Allowed {
		t.Error("unknown strategy must be denied")
	}
}

func TestOpenFromFill(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, nil, discardLogger())

	placed := domain.PlacedOrder{
		OrderID:     "ord-1",
		Status:      domain.PlacedOrderLive,
		ConditionID: "0xcond",
		TokenID:     "tok-1",
		Side:        domain.OrderSideBuy,
		Price:       0.57,
		SizeUSD:     50,
		Strategy:    "prediction-markets",
	}

	pos, err := m.OpenFromFill(context.Background(), placed, 1000)
	if err != nil {
		t.Fatalf("OpenFromFill: %v", err)
	}
	if pos.ID == "" {
		t.Error("position has no id")
	}
	if pos.Status != domain.PositionOpen {
		t.Errorf("status = %q", pos.Status)
	}
	if pos.Asset != "tok-1" || pos.CostBasis != 50 || pos.EntryPrice != 0.57 {
		t.Errorf("pos = %+v", pos)
	}
	if want := 50 / 0.57; math.Abs(pos.Size-want) > 1e-9 {
		t.Errorf("Size = %v, want %v", pos.Size, want)
	}
	if pos.Metadata["condition_id"] != "0xcond" || pos.Metadata["order_id"] != "ord-1" || pos.Metadata["side"] != "BUY" {
		t.Errorf("metadata = %v", pos.Metadata)
	}
	if _, err := store.GetByID(context.Background(), pos.ID); err != nil {
		t.Errorf("position not persisted: %v", err)
	}
}

func TestOpenFromFillRejectsFailedOrders(t *testing.T) {
	m := NewManager(newMemStore(), nil, discardLogger())

	placed := domain.PlacedOrder{Status: domain.PlacedOrderError, Strategy: "prediction-markets"}
	if _, err := m.OpenFromFill(context.Background(), placed, 1000); err == nil {
		t.Fatal("expected error for rejected order")
	}
}

func TestOpenFromFillEnforcesCap(t *testing.T) {
	store := newMemStore()
	openPosition(store, "p1", "prediction-markets", "tok-1", 140, 200)
	m := NewManager(store, nil, discardLogger())

	placed := domain.PlacedOrder{
		OrderID:  "ord-1",
		Status:   domain.PlacedOrderLive,
		TokenID:  "tok-2",
		Side:     domain.OrderSideBuy,
		Price:    0.5,
		SizeUSD:  50,
		Strategy: "prediction-markets",
	}
	_, err := m.OpenFromFill(context.Background(), placed, 1000)
	if !errors.Is(err, domain.ErrCapExceeded) {
		t.Fatalf("err = %v, want ErrCapExceeded", err)
	}
}

func TestRefreshPricesStopLoss(t *testing.T) {
	store := newMemStore()
	critical := openPosition(store, "crit", "prediction-markets", "tok-crit", 100, 200)
	warning := openPosition(store, "warn", "prediction-markets", "tok-warn", 100, 200)
	healthy := openPosition(store, "ok", "prediction-markets", "tok-ok", 100, 200)
	m := NewManager(store, nil, discardLogger())

	// 200 shares: 0.175 marks to $35 (65% drawdown), 0.26 to $52 (48%),
	// 0.50 to $100 (flat).
	actions, err := m.RefreshPrices(context.Background(), "prediction-markets", Snapshot{
		Prices: map[string]float64{
			"tok-crit": 0.175,
			"tok-warn": 0.26,
			"tok-ok":   0.50,
		},
	})
	if err != nil {
		t.Fatalf("RefreshPrices: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2: %+v", len(actions), actions)
	}

	byID := map[string]domain.RiskAction{}
	for _, a := range actions {
		byID[a.PositionID] = a
	}
	if a := byID[critical.ID]; a.Type != domain.ActionStopLoss || a.Urgency != domain.UrgencyCritical {
		t.Errorf("critical action = %+v", a)
	}
	if a := byID[warning.ID]; a.Type != domain.ActionStopLoss || a.Urgency != domain.UrgencyWarning {
		t.Errorf("warning action = %+v", a)
	}
	if _, ok := byID[healthy.ID]; ok {
		t.Error("healthy position produced an action")
	}

	// Marks are persisted.
	got, _ := store.GetByID(context.Background(), critical.ID)
	if got.CurrentPrice != 0.175 || got.CurrentValue != 35 {
		t.Errorf("persisted mark = %v/%v", got.CurrentPrice, got.CurrentValue)
	}
}

func TestRefreshPricesExpiresResolvedAssets(t *testing.T) {
	store := newMemStore()
	pos := openPosition(store, "p1", "prediction-markets", "tok-gone", 100, 200)
	m := NewManager(store, nil, discardLogger())

	actions, err := m.RefreshPrices(context.Background(), "prediction-markets", Snapshot{
		Resolved: map[string]bool{"tok-gone": true},
	})
	if err != nil {
		t.Fatalf("RefreshPrices: %v", err)
	}
	if len(actions) != 1 || actions[0].Type != domain.ActionExpire {
		t.Fatalf("actions = %+v, want one expire", actions)
	}

	got, _ := store.GetByID(context.Background(), pos.ID)
	if got.Status != domain.PositionExpired {
		t.Errorf("status = %q, want expired", got.Status)
	}
}

func TestRefreshPricesSkipsAssetsWithoutFreshData(t *testing.T) {
	store := newMemStore()
	pos := openPosition(store, "p1", "prediction-markets", "tok-quiet", 100, 200)
	m := NewManager(store, nil, discardLogger())

	// A price lookup that failed this cycle leaves the asset out of both
	// maps; the position must ride unchanged, not expire.
	actions, err := m.RefreshPrices(context.Background(), "prediction-markets", Snapshot{})
	if err != nil {
		t.Fatalf("RefreshPrices: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("actions = %+v, want none", actions)
	}

	got, _ := store.GetByID(context.Background(), pos.ID)
	if got.Status != domain.PositionOpen {
		t.Errorf("status = %q, want open", got.Status)
	}
	if got.CurrentPrice != pos.CurrentPrice || got.CurrentValue != pos.CurrentValue {
		t.Errorf("marks changed without data: %v/%v", got.CurrentPrice, got.CurrentValue)
	}
}

func TestRefreshPricesLiquidationWarning(t *testing.T) {
	store := newMemStore()
	pos := openPosition(store, "p1", "leveraged-perps", "eth-perp", 100, 200)
	pos.Metadata["liquidation_price"] = "0.45"
	store.positions[pos.ID] = pos
	m := NewManager(store, nil, discardLogger())

	// Price 0.50 is within 20% of the 0.45 liquidation price; drawdown is
	// zero so the stop-loss check stays quiet.
	actions, err := m.RefreshPrices(context.Background(), "leveraged-perps", Snapshot{
		Prices: map[string]float64{"eth-perp": 0.50},
	})
	if err != nil {
		t.Fatalf("RefreshPrices: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1: %+v", len(actions), actions)
	}
	if actions[0].Type != domain.ActionLiquidationWarning || actions[0].Urgency != domain.UrgencyCritical {
		t.Errorf("action = %+v", actions[0])
	}
}

func TestClose(t *testing.T) {
	store := newMemStore()
	pos := openPosition(store, "p1", "prediction-markets", "tok-1", 100, 200)
	m := NewManager(store, nil, discardLogger())

	// 200 shares exited at 0.6 would gross $120, but fees took a cut; the
	// realized number comes from the $118.50 actually received.
	realized, err := m.Close(context.Background(), pos.ID, "0xtx", 0.6, 118.50)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if math.Abs(realized-18.50) > 1e-9 {
		t.Errorf("realized = %v, want 18.50 (proceeds minus basis)", realized)
	}

	got, _ := store.GetByID(context.Background(), pos.ID)
	if got.Status != domain.PositionClosed {
		t.Errorf("status = %q", got.Status)
	}
	if got.TxHash == nil || *got.TxHash != "0xtx" {
		t.Errorf("tx hash = %v", got.TxHash)
	}

	// Closing twice is an error.
	if _, err := m.Close(context.Background(), pos.ID, "", 0.6, 120); err == nil {
		t.Error("expected error closing an already-closed position")
	}
}

func TestCloseUnknownPosition(t *testing.T) {
	m := NewManager(newMemStore(), nil, discardLogger())
	if _, err := m.Close(context.Background(), "nope", "", 0.5, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestParseMetadataFloat(t *testing.T) {
	meta := map[string]string{"liquidation_price": "123.45", "bad": "abc"}
	if v, ok := parseMetadataFloat(meta, "liquidation_price"); !ok || v != 123.45 {
		t.Errorf("got %v, %v", v, ok)
	}
	if _, ok := parseMetadataFloat(meta, "bad"); ok {
		t.Error("parsed garbage value")
	}
	if _, ok := parseMetadataFloat(meta, "missing"); ok {
		t.Error("parsed missing key")
	}
}
