package worker

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pipeline/internal/domain"
)

const (
	complexityPerZone   = 0.5
	complexityPerEffect = 0.3
	complexityCeiling   = 10.0
	renderMSPerPoint    = 2000
	complexityEffectCap = 8.0
	maxTrimmedEffects   = 3
	renderTimeBudgetMS  = 10000
)

// OptimizeOptions scores the complexity of a customization and trims it to
// fit the render time budget. Complexity is zones*0.5 + effects*0.3 clipped
// to [0,10]; estimated render time is 2000ms per complexity point. Above
// complexity 8 the effects list is cut to three entries, and an estimate
// over ten seconds downgrades ultra quality to high. Every change emits a
// human-readable suggestion.
func OptimizeOptions(opts domain.DesignOptions) domain.OptimizationResult {
	complexity := float64(len(opts.Zones))*complexityPerZone + float64(len(opts.Effects))*complexityPerEffect
	if complexity < 0 {
		complexity = 0
	}
	if complexity > complexityCeiling {
		complexity = complexityCeiling
	}
	estimatedMS := int64(renderMSPerPoint * complexity)

	optimized := opts
	var suggestions []string
	titler := cases.Title(language.English)

	if complexity > complexityEffectCap && len(optimized.Effects) > maxTrimmedEffects {
		dropped := len(optimized.Effects) - maxTrimmedEffects
		optimized.Effects = append([]string(nil), optimized.Effects[:maxTrimmedEffects]...)
		suggestions = append(suggestions, fmt.Sprintf(
			"Design complexity %.1f is high; removed %d effect(s) to keep rendering responsive.",
			complexity, dropped,
		))
	}

	if estimatedMS > renderTimeBudgetMS && optimized.Quality == domain.QualityUltra {
		optimized.Quality = domain.QualityHigh
		suggestions = append(suggestions, fmt.Sprintf(
			"Estimated render time %.1fs exceeds the %ds budget; downgraded quality from %s to %s.",
			float64(estimatedMS)/1000, renderTimeBudgetMS/1000,
			titler.String(string(domain.QualityUltra)), titler.String(string(domain.QualityHigh)),
		))
	}

	return domain.OptimizationResult{
		Complexity:        complexity,
		EstimatedRenderMS: estimatedMS,
		Options:           optimized,
		Suggestions:       suggestions,
	}
}

// ValidateOptions checks a customization against product rules, failing
// closed: every violated rule is reported and any violation rejects the
// design.
func ValidateOptions(prompt string, opts domain.DesignOptions, rules domain.CustomizationRules) []string {
	var violations []string

	if rules.MinPromptLength > 0 && len(prompt) < rules.MinPromptLength {
		violations = append(violations, fmt.Sprintf("prompt must be at least %d characters", rules.MinPromptLength))
	}
	if rules.MaxZones > 0 && len(opts.Zones) > rules.MaxZones {
		violations = append(violations, fmt.Sprintf("at most %d customization zones allowed, got %d", rules.MaxZones, len(opts.Zones)))
	}
	if rules.MaxEffects > 0 && len(opts.Effects) > rules.MaxEffects {
		violations = append(violations, fmt.Sprintf("at most %d effects allowed, got %d", rules.MaxEffects, len(opts.Effects)))
	}
	if len(rules.AllowedQualities) > 0 && opts.Quality != "" {
		allowed := false
		for _, q := range rules.AllowedQualities {
			if q == opts.Quality {
				allowed = true
				break
			}
		}
		if !allowed {
			violations = append(violations, fmt.Sprintf("quality %q is not allowed for this product", opts.Quality))
		}
	}
	if len(rules.AllowedEffects) > 0 {
		allowed := make(map[string]bool, len(rules.AllowedEffects))
		for _, e := range rules.AllowedEffects {
			allowed[e] = true
		}
		for _, e := range opts.Effects {
			if !allowed[e] {
				violations = append(violations, fmt.Sprintf("effect %q is not allowed for this product", e))
			}
		}
	}
	return violations
}
