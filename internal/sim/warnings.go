package sim

import (
	"fmt"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// Warning thresholds, in the units of the metric they guard.
const (
	slippageWarnPct = 5.0
	impactWarnPct   = 10.0
	longFillSecs    = 60.0
)

// Warnings derives caller-facing cautions from a simulation outcome.
// Output order is fixed: slippage, market impact, partial fill, fill
// time. An empty slice means the order looks clean.
func Warnings(req domain.OrderSimulation, m domain.ImpactMetrics) []string {
	var out []string
	if m.Slippage > slippageWarnPct {
		out = append(out, fmt.Sprintf("high slippage: %.2f%%", m.Slippage))
	}
	if m.MarketImpact > impactWarnPct {
		out = append(out, fmt.Sprintf("high market impact: %.2f%% of best level", m.MarketImpact))
	}
	if m.FillPercentage < 100 {
		out = append(out, fmt.Sprintf("partial fill expected: %.2f%% of requested quantity", m.FillPercentage))
	}
	if req.OrderType == domain.OrderTypeLimit && m.TimeToFill > longFillSecs {
		out = append(out, fmt.Sprintf("long fill time: %.0fs", m.TimeToFill))
	}
	return out
}
