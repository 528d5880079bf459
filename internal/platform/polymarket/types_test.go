package polymarket

import (
	"encoding/json"
	"testing"
)

const nestedMarketJSON = `{
	"condition_id": "0xcond",
	"question": "Will Bitcoin reach $100k?",
	"end_date_iso": "2026-12-31T12:00:00Z",
	"active": true,
	"closed": false,
	"neg_risk": true,
	"liquidity": 25000.5,
	"volume": "98765.4",
	"minimum_tick_size": 0.001,
	"tokens": [
		{"token_id": "111", "outcome": "Yes", "price": 0.62},
		{"token_id": "222", "outcome": "No", "price": "0.38"}
	]
}`

const parallelMarketJSON = `{
	"id": "0xcond",
	"question": "Will Bitcoin reach $100k?",
	"endDate": "2026-12-31T12:00:00Z",
	"active": "true",
	"closed": "false",
	"neg_risk": true,
	"liquidity": "25000.5",
	"volume": 98765.4,
	"minimum_tick_size": "0.001",
	"outcomes": "[\"Yes\",\"No\"]",
	"outcomePrices": "[\"0.62\",\"0.38\"]",
	"clobTokenIds": "[\"111\",\"222\"]"
}`

func TestToDomainMarketBothShapes(t *testing.T) {
	var nested, parallel apiMarket
	if err := json.Unmarshal([]byte(nestedMarketJSON), &nested); err != nil {
		t.Fatalf("unmarshal nested: %v", err)
	}
	if err := json.Unmarshal([]byte(parallelMarketJSON), &parallel); err != nil {
		t.Fatalf("unmarshal parallel: %v", err)
	}

	a, err := nested.toDomainMarket()
	if err != nil {
		t.Fatalf("nested toDomainMarket: %v", err)
	}
	b, err := parallel.toDomainMarket()
	if err != nil {
		t.Fatalf("parallel toDomainMarket: %v", err)
	}

	// The two response shapes must normalize to the identical market.
	if a != b {
		t.Errorf("shapes diverge:\nnested:   %+v\nparallel: %+v", a, b)
	}

	if a.ConditionID != "0xcond" {
		t.Errorf("ConditionID = %q", a.ConditionID)
	}
	if !a.NegRisk {
		t.Error("NegRisk = false, want true")
	}
	if a.TickSize != 0.001 {
		t.Errorf("TickSize = %v, want 0.001", a.TickSize)
	}
	if a.Liquidity != 25000.5 || a.Volume != 98765.4 {
		t.Errorf("liquidity/volume = %v/%v", a.Liquidity, a.Volume)
	}
	if a.EndDate.IsZero() {
		t.Error("EndDate not parsed")
	}
	if a.Tokens[0] != (a.YesToken()) || a.Tokens[0].TokenID != "111" || a.Tokens[0].Price != 0.62 {
		t.Errorf("yes token = %+v", a.Tokens[0])
	}
	if a.Tokens[1].TokenID != "222" || a.Tokens[1].Price != 0.38 {
		t.Errorf("no token = %+v", a.Tokens[1])
	}
}

func TestToDomainMarketDefaultTick(t *testing.T) {
	var raw apiMarket
	if err := json.Unmarshal([]byte(`{"condition_id":"0x1","tokens":[{"token_id":"1","outcome":"Yes","price":0.5},{"token_id":"2","outcome":"No","price":0.5}]}`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, err := raw.toDomainMarket()
	if err != nil {
		t.Fatalf("toDomainMarket: %v", err)
	}
	if m.TickSize != 0.01 {
		t.Errorf("TickSize = %v, want default 0.01", m.TickSize)
	}
}

func TestToDomainMarketMisalignedArrays(t *testing.T) {
	raw := apiMarket{
		ConditionID:   "0x1",
		Outcomes:      `["Yes","No"]`,
		OutcomePrices: `["0.5"]`,
		ClobTokenIDs:  `["1","2"]`,
	}
	if _, err := raw.toDomainMarket(); err == nil {
		t.Fatal("expected error for misaligned outcome arrays")
	}
}

func TestToDomainMarketWrongTokenCount(t *testing.T) {
	raw := apiMarket{
		ConditionID: "0x1",
		Tokens:      []apiToken{{TokenID: "1", Outcome: "Yes", Price: 0.5}},
	}
	if _, err := raw.toDomainMarket(); err == nil {
		t.Fatal("expected error for single-token market")
	}
}

func TestFlexBool(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"TRUE"`, true},
		{`"false"`, false},
		{`"1"`, true},
		{`"0"`, false},
	}
	for _, tc := range cases {
		var f flexBool
		if err := json.Unmarshal([]byte(tc.in), &f); err != nil {
			t.Errorf("unmarshal %s: %v", tc.in, err)
			continue
		}
		if bool(f) != tc.want {
			t.Errorf("flexBool(%s) = %v, want %v", tc.in, bool(f), tc.want)
		}
	}
}

func TestFlexFloat(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{`0.62`, 0.62},
		{`"0.62"`, 0.62},
		{`""`, 0},
		{`12345`, 12345},
	}
	for _, tc := range cases {
		var f flexFloat
		if err := json.Unmarshal([]byte(tc.in), &f); err != nil {
			t.Errorf("unmarshal %s: %v", tc.in, err)
			continue
		}
		if float64(f) != tc.want {
			t.Errorf("flexFloat(%s) = %v, want %v", tc.in, float64(f), tc.want)
		}
	}

	var f flexFloat
	if err := json.Unmarshal([]byte(`"not a number"`), &f); err == nil {
		t.Error("expected error for non-numeric string")
	}
}
