package model

// Score reason codes attached to a factor breakdown when a factor could
// not be computed from the proposal.
const (
	ReasonClassifierSignalMissing = "classifier_signal_missing"
	ReasonClassifierSignalInvalid = "classifier_signal_invalid"
)

// FactorBreakdown records each normalized scoring factor (0-100) and the
// pattern adjustment that produced the final confidence score.
type FactorBreakdown struct {
	ReasonCode           string `json:"reason_code,omitempty"`
	ExtractionQuality    int    `json:"extraction_quality"`
	ClassifierConfidence int    `json:"classifier_confidence"`
	FieldCompleteness    int    `json:"field_completeness"`
	AmountPlausibility   int    `json:"amount_plausibility"`
	PatternAdjustment    int    `json:"pattern_adjustment"`
}
