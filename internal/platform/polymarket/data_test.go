package polymarket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/positions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("user") != "0xwallet" {
			t.Errorf("user = %q", r.URL.Query().Get("user"))
		}
		io.WriteString(w, `[
			{"asset":"111","conditionId":"0xcond","size":"150.5","avgPrice":0.42,"curPrice":"0.55","currentValue":82.77,"cashPnl":19.56,"redeemable":false,"outcome":"Yes"},
			{"asset":"222","conditionId":"0xdust","size":0,"avgPrice":0.5,"curPrice":0.5,"currentValue":0,"cashPnl":0,"redeemable":false,"outcome":"No"}
		]`)
	}))
	defer srv.Close()

	d := NewDataClient(srv.URL, discardLogger())
	positions, err := d.Positions(context.Background(), "0xwallet")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}

	// Zero-size entries are filtered.
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	p := positions[0]
	if p.Asset != "111" || p.ConditionID != "0xcond" {
		t.Errorf("identity = %s/%s", p.Asset, p.ConditionID)
	}
	if p.Size != 150.5 || p.AvgPrice != 0.42 || p.CurPrice != 0.55 {
		t.Errorf("numbers = %v/%v/%v", p.Size, p.AvgPrice, p.CurPrice)
	}
	if p.Outcome != "Yes" {
		t.Errorf("outcome = %q", p.Outcome)
	}
}

func TestPositionsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDataClient(srv.URL, discardLogger())
	if _, err := d.Positions(context.Background(), "0xwallet"); err == nil {
		t.Fatal("expected error for upstream failure")
	}
}
