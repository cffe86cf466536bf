package intel

import (
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
)

// A near-complete curve with thin liquidity is treated as bad provider data.
const (
	OverrideProgressThreshold = 95.0
	OverrideLiquidityCeiling  = 100_000.0
)

// BondingProbe is the outcome of the early bonding-curve lookup.
type BondingProbe struct {
	Record *model.ProviderRecord
	Err    error
}

type Classification struct {
	State model.LifecycleState
	// Record is the probe record after any override, or nil.
	Record          *model.ProviderRecord
	BondingPrimary  bool
	OverrideApplied bool
}

// Classify decides the lifecycle state and whether the bonding-curve
// provider is authoritative. The probe record is never mutated.
func Classify(probe BondingProbe) Classification {
	if probe.Err != nil && !providers.IsNotAvailable(probe.Err) {
		return Classification{State: model.StateUnknown}
	}
	if probe.Record == nil {
		return Classification{State: model.StateGraduatedOrRegular}
	}

	rec := *probe.Record
	out := Classification{Record: &rec}
	if rec.Progress != nil && *rec.Progress >= OverrideProgressThreshold {
		if liq := rec.ReportedLiquidity(); liq != nil && *liq < OverrideLiquidityCeiling {
			rec.Progress = model.FloatPtr(0)
			rec.Completed = false
			out.OverrideApplied = true
		}
	}

	switch {
	case rec.Progress != nil && *rec.Progress < 100 && !rec.Completed:
		out.State = model.StatePrelaunchBonding
		out.BondingPrimary = true
	case rec.Completed || (rec.Progress != nil && *rec.Progress >= 100):
		rec.Completed = true
		out.State = model.StateGraduatedOrRegular
	default:
		// Curve found but progress unknown.
		out.State = model.StateUnknown
	}
	return out
}
