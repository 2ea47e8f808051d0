package model

// Band is the maturity tier of a process.
type Band string

const (
	BandLow    Band = "LOW"
	BandMedium Band = "MEDIUM"
	BandHigh   Band = "HIGH"
)

// Rank orders bands best-first (HIGH=0, MEDIUM=1, LOW=2).
func (b Band) Rank() int {
	switch b {
	case BandHigh:
		return 0
	case BandMedium:
		return 1
	case BandLow:
		return 2
	default:
		return 3
	}
}

// Valid reports whether b is one of the known bands.
func (b Band) Valid() bool {
	return b == BandLow || b == BandMedium || b == BandHigh
}

// Dimension tags a question with the management aspect it measures.
type Dimension string

const (
	DimExistencia Dimension = "EXISTENCIA"
	DimRotina     Dimension = "ROTINA"
	DimDono       Dimension = "DONO"
	DimControle   Dimension = "CONTROLE"
)

// Dimensions lists every dimension in reporting order.
func Dimensions() []Dimension {
	return []Dimension{DimExistencia, DimRotina, DimDono, DimControle}
}

// BandRule names the banding rule that produced a band.
type BandRule string

const (
	RuleFallbackScore        BandRule = "fallback_score"
	RuleMissingOrWeakMinimum BandRule = "missing_or_weak_minimum"
	RuleAllMinimumStrong     BandRule = "all_minimum_strong"
	RuleIntermediate         BandRule = "intermediate"
)

// ProcessScore is the derived score and band for one process.
// A nil dimension entry means no question was tagged with that dimension.
type ProcessScore struct {
	AssessmentID    string                 `json:"assessment_id"`
	ProcessKey      string                 `json:"process_key"`
	ScoreNumeric    float64                `json:"score_numeric"`
	Band            Band                   `json:"band"`
	DimensionScores map[Dimension]*float64 `json:"dimension_scores"`
	RuleUsed        BandRule               `json:"rule_used"`
	AnswerCount     int                    `json:"answer_count"`
}

// ScoreIndex indexes scores by process key.
func ScoreIndex(scores []ProcessScore) map[string]ProcessScore {
	out := make(map[string]ProcessScore, len(scores))
	for _, s := range scores {
		out[s.ProcessKey] = s
	}
	return out
}
