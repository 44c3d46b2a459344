package port

import "fmt"

// catalog holds the one contract per port identifier. The map is never
// mutated after init; Lookup returns entries by value.
var catalog = map[ID]Contract{
	IntentToAction: {
		ID:                            IntentToAction,
		Name:                          "Intent to Action",
		Privacy:                       PrivacyNormal,
		Merge:                         MergePreferHigherConfidence,
		HashExcludedKeys:              []string{"referenceDate"},
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateIntentInput,
		ValidateOutput:                validateIntentOutput,
	},
	Summarize: {
		ID:                            Summarize,
		Name:                          "Summarize",
		Privacy:                       PrivacyNormal,
		Merge:                         MergeDefaultOnly,
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateSummarizeInput,
		ValidateOutput:                validateSummarizeOutput,
	},
	Rewrite: {
		ID:      Rewrite,
		Name:    "Rewrite",
		Privacy: PrivacyNormal,
		Merge:   MergeDefaultOnly,
		// No deterministic tone rewrite exists; when no provider can serve
		// this port the call fails rather than degrade.
		SupportsDeterministicFallback: false,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateRewriteInput,
		ValidateOutput:                validateRewriteOutput,
	},
	StudyQuestionGen: {
		ID:                            StudyQuestionGen,
		Name:                          "Study Question Generation",
		Privacy:                       PrivacyNormal,
		Merge:                         MergeDefaultOnly,
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateStudyQuestionInput,
		ValidateOutput:                validateStudyQuestionOutput,
	},
	SyllabusParse: {
		ID:      SyllabusParse,
		Name:    "Syllabus Parse",
		Privacy: PrivacySensitive,
		Merge:   MergeDefaultOnly,
		// Course material routinely embeds student identifiers, so this port
		// never reaches a bring-your-own endpoint.
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateSyllabusInput,
		ValidateOutput:                validateSyllabusOutput,
	},
	EstimateTaskDuration: {
		ID:                            EstimateTaskDuration,
		Name:                          "Estimate Task Duration",
		Privacy:                       PrivacyNormal,
		Merge:                         MergePreferHigherConfidence,
		HashExcludedKeys:              []string{"requestedAt"},
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateDurationInput,
		ValidateOutput:                validateDurationOutput,
	},
	WorkloadForecast: {
		ID:                            WorkloadForecast,
		Name:                          "Workload Forecast",
		Privacy:                       PrivacyOnDeviceOnly,
		Merge:                         MergeDefaultOnly,
		HashExcludedKeys:              []string{"requestedAt"},
		UnorderedArrayKeys:            []string{"tasks"},
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateForecastInput,
		ValidateOutput:                validateForecastOutput,
	},
	GenerateStudyPlan: {
		ID:                            GenerateStudyPlan,
		Name:                          "Generate Study Plan",
		Privacy:                       PrivacyNormal,
		Merge:                         MergeDefaultOnly,
		UnorderedArrayKeys:            []string{"assignments", "slots"},
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateStudyPlanInput,
		ValidateOutput:                validateStudyPlanOutput,
	},
	SchedulePlacement: {
		ID:                            SchedulePlacement,
		Name:                          "Schedule Placement",
		Privacy:                       PrivacyNormal,
		Merge:                         MergeDefaultOnly,
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validatePlacementInput,
		ValidateOutput:                validatePlacementOutput,
	},
	ConflictResolution: {
		ID:                            ConflictResolution,
		Name:                          "Conflict Resolution",
		Privacy:                       PrivacyNormal,
		Merge:                         MergeDefaultOnly,
		UnorderedArrayKeys:            []string{"sessions"},
		SupportsDeterministicFallback: true,
		PreferredProviders:            defaultPreference,
		ValidateInput:                 validateConflictInput,
		ValidateOutput:                validateConflictOutput,
	},
}

// Lookup returns the contract for a port identifier.
func Lookup(id ID) (Contract, error) {
	c, ok := catalog[id]
	if !ok {
		return Contract{}, fmt.Errorf("unknown port %q", id)
	}
	return c, nil
}

// Catalog returns every contract in AllIDs order.
func Catalog() []Contract {
	out := make([]Contract, 0, len(catalog))
	for _, id := range AllIDs() {
		out = append(out, catalog[id])
	}
	return out
}
