package domain

import "time"

// PositionStatus is the lifecycle state of a position. open transitions to
// partial_exit, stop_hit, expired, or closed; only closed is strictly
// terminal. partial_exit and stop_hit mean "action required" - the caller is
// responsible for eventually driving the position to closed.
type PositionStatus string

const (
	PositionOpen        PositionStatus = "open"
	PositionPartialExit PositionStatus = "partial_exit"
	PositionStopHit     PositionStatus = "stop_hit"
	PositionExpired     PositionStatus = "expired"
	PositionClosed      PositionStatus = "closed"
)

// Position is an owned, mutable record of an open or historical holding.
// Positions are never deleted, only transitioned to a terminal status.
type Position struct {
	ID            string
	Strategy      string
	Asset         string // outcome-token id for prediction markets
	Status        PositionStatus
	EntryPrice    float64
	CurrentPrice  float64
	Size          float64
	CostBasis     float64
	CurrentValue  float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TxHash        *string
	Metadata      map[string]string // protocol-specific ids, e.g. condition_id
	OpenedAt      time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// ExposureCheck is the computed, non-persisted result of gating a prospective
// position against a strategy's portfolio-fraction cap.
type ExposureCheck struct {
	Allowed     bool
	Strategy    string
	CurrentUSD  float64
	ProposedUSD float64
	CapUSD      float64
	HeadroomUSD float64
	Reason      string
}

// RiskActionType labels the actions emitted by a price refresh. The position
// manager reports these; it never executes them.
type RiskActionType string

const (
	ActionStopLoss           RiskActionType = "stop_loss"
	ActionLiquidationWarning RiskActionType = "liquidation_warning"
	ActionExpire             RiskActionType = "expire"
)

// RiskUrgency grades how quickly a risk action should be handled.
type RiskUrgency string

const (
	UrgencyWarning  RiskUrgency = "warning"
	UrgencyCritical RiskUrgency = "critical"
)

// RiskAction is a single recommended action for an open position.
type RiskAction struct {
	Type         RiskActionType
	PositionID   string
	Asset        string
	Strategy     string
	Urgency      RiskUrgency
	Reason       string
	CostBasis    float64
	CurrentValue float64
}

// LivePosition is one entry from the venue's live positions snapshot, keyed
// by outcome-token id.
type LivePosition struct {
	Asset        string
	ConditionID  string
	Size         float64
	AvgPrice     float64
	CurPrice     float64
	CurrentValue float64
	CashPnL      float64
	Redeemable   bool
	Outcome      string
}
