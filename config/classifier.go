package config

// ClassifierConfig captures tuning knobs for message and image
// classification. Fields can be customized through config.yaml; defaults
// match the canonical keyword tables.
type ClassifierConfig struct {
	// ExtraKeywords adds phrases to an issue type's keyword set without
	// replacing the built-in table.
	ExtraKeywords map[string][]string `json:"extra_keywords" yaml:"extra_keywords"`
	// UrgencyKeywords replaces the urgency vocabulary when non-empty.
	UrgencyKeywords []string `json:"urgency_keywords" yaml:"urgency_keywords"`
	// LowConfidenceBelow is the threshold under which replies carry a
	// calibration disclaimer.
	LowConfidenceBelow float64 `json:"low_confidence_below" yaml:"low_confidence_below"`
	// VisionThreshold is the minimum service-reported score for an image
	// annotation to count as a candidate.
	VisionThreshold float64 `json:"vision_threshold" yaml:"vision_threshold"`
}

const (
	defaultLowConfidence   = 0.7
	defaultVisionThreshold = 0.7
)

var defaultUrgencyKeywords = []string{
	"urgent", "emergency", "asap", "immediately", "critical", "dangerous", "hazard",
}

// DefaultClassifierConfig returns the baked-in tuning defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		UrgencyKeywords:    append([]string{}, defaultUrgencyKeywords...),
		LowConfidenceBelow: defaultLowConfidence,
		VisionThreshold:    defaultVisionThreshold,
	}
}

// MergeClassifierConfig overlays non-zero fields onto the base config.
func MergeClassifierConfig(base ClassifierConfig, override ClassifierConfig) ClassifierConfig {
	if len(override.ExtraKeywords) > 0 {
		if base.ExtraKeywords == nil {
			base.ExtraKeywords = map[string][]string{}
		}
		for issue, kws := range override.ExtraKeywords {
			base.ExtraKeywords[issue] = append(base.ExtraKeywords[issue], kws...)
		}
	}
	if len(override.UrgencyKeywords) > 0 {
		base.UrgencyKeywords = append([]string{}, override.UrgencyKeywords...)
	}
	if override.LowConfidenceBelow > 0 {
		base.LowConfidenceBelow = override.LowConfidenceBelow
	}
	if override.VisionThreshold > 0 {
		base.VisionThreshold = override.VisionThreshold
	}
	return base
}
