package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/predictbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") because the
// discovery API sends "active" as either, depending on the endpoint.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Discovery API DTOs
// --------------------------------------------------------------------------

// apiToken is one entry of the nested outcome-token array shape.
type apiToken struct {
	TokenID string    `json:"token_id"`
	Outcome string    `json:"outcome"`
	Price   flexFloat `json:"price"`
	Winner  bool      `json:"winner"`
}

// apiMarket represents a market in either of the discovery API's two response
// shapes: a nested token array, or three parallel JSON-encoded string arrays
// (outcomes/prices/token ids) that must be zipped back together by index.
type apiMarket struct {
	ID            string     `json:"id"`
	ConditionID   string     `json:"condition_id"`
	Question      string     `json:"question"`
	EndDateISO    string     `json:"end_date_iso"`
	EndDate       string     `json:"endDate"`
	Active        flexBool   `json:"active"`
	Closed        flexBool   `json:"closed"`
	NegRisk       bool       `json:"neg_risk"`
	Liquidity     flexFloat  `json:"liquidity"`
	Volume        flexFloat  `json:"volume"`
	MinTickSize   flexFloat  `json:"minimum_tick_size"`
	Tokens        []apiToken `json:"tokens"`
	Outcomes      string     `json:"outcomes"`      // JSON-encoded, e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string     `json:"outcomePrices"` // JSON-encoded, e.g. "[\"0.62\",\"0.38\"]"
	ClobTokenIDs  string     `json:"clobTokenIds"`  // JSON-encoded, e.g. "[\"123...\",\"456...\"]"
}

// toDomainMarket normalizes either response shape into the canonical
// domain.Market. The shape union never propagates past this boundary.
func (m *apiMarket) toDomainMarket() (domain.Market, error) {
	dm := domain.Market{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Active:      bool(m.Active),
		Closed:      bool(m.Closed),
		NegRisk:     m.NegRisk,
		Liquidity:   float64(m.Liquidity),
		Volume:      float64(m.Volume),
		TickSize:    float64(m.MinTickSize),
	}
	if dm.ConditionID == "" {
		dm.ConditionID = m.ID
	}
	if dm.TickSize == 0 {
		dm.TickSize = 0.01
	}

	endDate := m.EndDateISO
	if endDate == "" {
		endDate = m.EndDate
	}
	if endDate != "" {
		if t, err := time.Parse(time.RFC3339, endDate); err == nil {
			dm.EndDate = t
		}
	}

	tokens, err := m.outcomeTokens()
	if err != nil {
		return domain.Market{}, err
	}
	dm.Tokens = tokens

	return dm, nil
}

// outcomeTokens reconstructs the two outcome tokens from whichever shape the
// entry carries.
func (m *apiMarket) outcomeTokens() ([2]domain.OutcomeToken, error) {
	var out [2]domain.OutcomeToken

	// Nested shape.
	if len(m.Tokens) > 0 {
		if len(m.Tokens) != 2 {
			return out, fmt.Errorf("market %s: expected 2 tokens, got %d", m.ConditionID, len(m.Tokens))
		}
		for i, t := range m.Tokens {
			out[i] = domain.OutcomeToken{
				TokenID: t.TokenID,
				Outcome: t.Outcome,
				Price:   float64(t.Price),
			}
		}
		return out, nil
	}

	// Parallel-array shape: three JSON-encoded string arrays zipped by index.
	var outcomes, prices, ids []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return out, fmt.Errorf("market %s: decode outcomes: %w", m.ConditionID, err)
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return out, fmt.Errorf("market %s: decode outcome prices: %w", m.ConditionID, err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return out, fmt.Errorf("market %s: decode token ids: %w", m.ConditionID, err)
	}
	if len(outcomes) != 2 || len(prices) != 2 || len(ids) != 2 {
		return out, fmt.Errorf("market %s: misaligned outcome arrays (%d/%d/%d)",
			m.ConditionID, len(outcomes), len(prices), len(ids))
	}

	for i := 0; i < 2; i++ {
		p, err := strconv.ParseFloat(prices[i], 64)
		if err != nil {
			return out, fmt.Errorf("market %s: parse price %q: %w", m.ConditionID, prices[i], err)
		}
		out[i] = domain.OutcomeToken{
			TokenID: ids[i],
			Outcome: outcomes[i],
			Price:   p,
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Execution API DTOs
// --------------------------------------------------------------------------

// apiOrderResult is the response from placing an order.
type apiOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	OrderID  string `json:"orderID,omitempty"`
	Status   string `json:"status,omitempty"`
}

// --------------------------------------------------------------------------
// Public data API DTOs
// --------------------------------------------------------------------------

// apiLivePosition is one entry of the public positions endpoint.
type apiLivePosition struct {
	Asset        string    `json:"asset"`
	ConditionID  string    `json:"conditionId"`
	Size         flexFloat `json:"size"`
	AvgPrice     flexFloat `json:"avgPrice"`
	CurPrice     flexFloat `json:"curPrice"`
	CurrentValue flexFloat `json:"currentValue"`
	CashPnL      flexFloat `json:"cashPnl"`
	Redeemable   bool      `json:"redeemable"`
	Outcome      string    `json:"outcome"`
}

func (p *apiLivePosition) toDomain() domain.LivePosition {
	return domain.LivePosition{
		Asset:        p.Asset,
		ConditionID:  p.ConditionID,
		Size:         float64(p.Size),
		AvgPrice:     float64(p.AvgPrice),
		CurPrice:     float64(p.CurPrice),
		CurrentValue: float64(p.CurrentValue),
		CashPnL:      float64(p.CashPnL),
		Redeemable:   p.Redeemable,
		Outcome:      p.Outcome,
	}
}
