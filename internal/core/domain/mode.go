package domain

import "strings"

type ModeName string

const (
	ModeBaseline                   ModeName = "baseline"
	ModeHyDE                       ModeName = "hyde"
	ModeHybrid                     ModeName = "hybrid"
	ModeHyDEHybrid                 ModeName = "hyde_hybrid"
	ModeHyDEStepBackFallback       ModeName = "hyde_stepback_fallback"
	ModeHyDEHybridStepBackFallback ModeName = "hyde_hybrid_stepback_fallback"
)

// Mode is a resolved retrieval strategy with its capability flags.
type Mode struct {
	Name        ModeName `json:"name"`
	UsesRewrite bool     `json:"uses_rewrite"`
	UsesHybrid  bool     `json:"uses_hybrid"`
	UsesGapFill bool     `json:"uses_gap_fill"`
}

var modeCatalog = map[ModeName]Mode{
	ModeBaseline:                   {Name: ModeBaseline},
	ModeHyDE:                       {Name: ModeHyDE, UsesRewrite: true},
	ModeHybrid:                     {Name: ModeHybrid, UsesHybrid: true},
	ModeHyDEHybrid:                 {Name: ModeHyDEHybrid, UsesRewrite: true, UsesHybrid: true},
	ModeHyDEStepBackFallback:       {Name: ModeHyDEStepBackFallback, UsesRewrite: true, UsesGapFill: true},
	ModeHyDEHybridStepBackFallback: {Name: ModeHyDEHybridStepBackFallback, UsesRewrite: true, UsesHybrid: true, UsesGapFill: true},
}

// Older API clients still send the RRF-suffixed name.
var modeAliases = map[string]ModeName{
	"hyde_hybrid_rrf": ModeHyDEHybrid,
}

// ResolveMode maps a raw strategy name to its canonical Mode. Unknown or empty
// input resolves to baseline.
func ResolveMode(raw string) Mode {
	name := ModeName(strings.ToLower(strings.TrimSpace(raw)))
	if mode, ok := modeCatalog[name]; ok {
		return mode
	}
	if alias, ok := modeAliases[string(name)]; ok {
		return modeCatalog[alias]
	}
	return modeCatalog[ModeBaseline]
}

// AllModes lists the canonical modes in a stable order.
func AllModes() []Mode {
	return []Mode{
		modeCatalog[ModeBaseline],
		modeCatalog[ModeHyDE],
		modeCatalog[ModeHybrid],
		modeCatalog[ModeHyDEHybrid],
		modeCatalog[ModeHyDEStepBackFallback],
		modeCatalog[ModeHyDEHybridStepBackFallback],
	}
}
