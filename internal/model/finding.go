package model

// FindingType distinguishes leaks from levers in the six-pack.
type FindingType string

const (
	FindingVazamento FindingType = "VAZAMENTO"
	FindingAlavanca  FindingType = "ALAVANCA"
)

// GapReasonNotClassified marks a finding whose gap cause is still pending.
const GapReasonNotClassified = "gap_not_classified"

// TraceItem is one answer backing a finding.
type TraceItem struct {
	ProcessKey  string `json:"process_key"`
	QuestionKey string `json:"question_key"`
	Value       int    `json:"value"`
}

// ActionRef is a lightweight pointer to a catalog action.
type ActionRef struct {
	ActionKey string `json:"action_key"`
	Title     string `json:"title"`
}

// FindingPayload is the user-facing content of a finding.
type FindingPayload struct {
	ProcessKey      string      `json:"process_key"`
	ProcessName     string      `json:"process_name"`
	Band            Band        `json:"band"`
	ScoreNumeric    float64     `json:"score_numeric"`
	Title           string      `json:"title"`
	Body            string      `json:"body"`
	GapID           string      `json:"gap_id,omitempty"`
	GapReason       string      `json:"gap_reason,omitempty"`
	CausePrimary    string      `json:"cause_primary,omitempty"`
	CauseSecondary  string      `json:"cause_secondary,omitempty"`
	CauseLabel      string      `json:"cause_label,omitempty"`
	MechanismKey    string      `json:"mechanism_key,omitempty"`
	MechanismTitle  string      `json:"mechanism_title,omitempty"`
	PrimeiroPasso   []ActionRef `json:"primeiro_passo,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

// Finding is one entry of the six-pack.
type Finding struct {
	AssessmentID string         `json:"assessment_id"`
	Type         FindingType    `json:"type"`
	Position     int            `json:"position"`
	ProcessKey   string         `json:"process_key"`
	Payload      FindingPayload `json:"payload"`
	Trace        []TraceItem    `json:"trace"`
	IsFallback   bool           `json:"is_fallback"`
}

// SixPack splits findings into leaks and levers, each ordered by position.
type SixPack struct {
	Vazamentos []Finding `json:"vazamentos"`
	Alavancas  []Finding `json:"alavancas"`
}

// SplitFindings builds a SixPack from a flat list.
func SplitFindings(findings []Finding) SixPack {
	sp := SixPack{Vazamentos: []Finding{}, Alavancas: []Finding{}}
	for _, f := range findings {
		switch f.Type {
		case FindingVazamento:
			sp.Vazamentos = append(sp.Vazamentos, f)
		case FindingAlavanca:
			sp.Alavancas = append(sp.Alavancas, f)
		}
	}
	return sp
}
