package frames

import (
	"context"

	"serpent-arena/server/logging"
)

const (
	// EventBudgetOverrun is emitted when AI work pushed a frame past its budget.
	EventBudgetOverrun logging.EventType = "frames.budget_overrun"
	// EventCapAdjusted is emitted when the adaptive per-frame cap changes.
	EventCapAdjusted logging.EventType = "frames.cap_adjusted"
)

// BudgetOverrunPayload captures timing details for a frame budget breach.
type BudgetOverrunPayload struct {
	DurationMillis float64 `json:"durationMillis"`
	BudgetMillis   float64 `json:"budgetMillis"`
	Overruns       uint64  `json:"overruns"`
}

// CapAdjustedPayload captures an adaptive throttle adjustment.
type CapAdjustedPayload struct {
	PreviousCap   int     `json:"previousCap"`
	NewCap        int     `json:"newCap"`
	AverageCalcMs float64 `json:"averageCalcMs"`
}

// BudgetOverrun publishes a warning when a frame exceeded its budget.
func BudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload BudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// CapAdjusted publishes an info event when the scheduler retunes itself.
func CapAdjusted(ctx context.Context, pub logging.Publisher, tick uint64, payload CapAdjustedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCapAdjusted,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
