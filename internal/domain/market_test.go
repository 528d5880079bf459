package domain

import (
	"math"
	"testing"
	"time"
)

func TestTokenSelection(t *testing.T) {
	m := Market{Tokens: [2]OutcomeToken{
		{TokenID: "n", Outcome: "No", Price: 0.4},
		{TokenID: "y", Outcome: "Yes", Price: 0.6},
	}}
	if got := m.YesToken(); got.TokenID != "y" {
		t.Errorf("YesToken = %+v", got)
	}
	if got := m.NoToken(); got.TokenID != "n" {
		t.Errorf("NoToken = %+v", got)
	}

	// Unlabelled tokens fall back to positional order.
	m = Market{Tokens: [2]OutcomeToken{
		{TokenID: "first", Outcome: "Up", Price: 0.5},
		{TokenID: "second", Outcome: "Down", Price: 0.5},
	}}
	if got := m.YesToken(); got.TokenID != "first" {
		t.Errorf("fallback YesToken = %+v", got)
	}
	if got := m.NoToken(); got.TokenID != "second" {
		t.Errorf("fallback NoToken = %+v", got)
	}
}

func TestValidPrices(t *testing.T) {
	valid := Market{Tokens: [2]OutcomeToken{{Price: 0.62}, {Price: 0.38}}}
	if !valid.ValidPrices() {
		t.Error("ValidPrices = false for (0.62, 0.38)")
	}

	for _, p := range []float64{0, 1, -0.1, 1.2, math.NaN()} {
		m := Market{Tokens: [2]OutcomeToken{{Price: p}, {Price: 0.5}}}
		if m.ValidPrices() {
			t.Errorf("ValidPrices = true for price %v", p)
		}
	}
}

func TestDaysToResolution(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := Market{EndDate: now.Add(36 * time.Hour)}
	if got := m.DaysToResolution(now); got != 1.5 {
		t.Errorf("DaysToResolution = %v, want 1.5", got)
	}
	m = Market{EndDate: now.Add(-24 * time.Hour)}
	if got := m.DaysToResolution(now); got != -1 {
		t.Errorf("DaysToResolution = %v, want -1", got)
	}
}

func TestOpportunityScore(t *testing.T) {
	o := Opportunity{Edge: 0.25, StakeUSD: 20}
	if got := o.Score(); got != 5 {
		t.Errorf("Score = %v, want 5", got)
	}
}
