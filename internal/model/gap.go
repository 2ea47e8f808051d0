package model

import "time"

// GapStatus tracks whether a gap's root cause has been classified.
type GapStatus string

const (
	GapCausePending    GapStatus = "CAUSE_PENDING"
	GapCauseClassified GapStatus = "CAUSE_CLASSIFIED"
)

// GapInstance is a systemic weakness detected for a LOW-band process.
type GapInstance struct {
	AssessmentID string    `json:"assessment_id"`
	GapID        string    `json:"gap_id"`
	ProcessKey   string    `json:"process_key"`
	Status       GapStatus `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Likert is a 5-point agreement answer.
type Likert int

const (
	LikertDiscordoPlenamente Likert = 1
	LikertDiscordo           Likert = 2
	LikertNeutro             Likert = 3
	LikertConcordo           Likert = 4
	LikertConcordoPlenamente Likert = 5
)

var likertNames = map[Likert]string{
	LikertDiscordoPlenamente: "DISCORDO_PLENAMENTE",
	LikertDiscordo:           "DISCORDO",
	LikertNeutro:             "NEUTRO",
	LikertConcordo:           "CONCORDO",
	LikertConcordoPlenamente: "CONCORDO_PLENAMENTE",
}

// String returns the canonical label of the answer.
func (l Likert) String() string {
	if n, ok := likertNames[l]; ok {
		return n
	}
	return "UNKNOWN"
}

// Valid reports whether l is on the 1..5 scale.
func (l Likert) Valid() bool {
	return l >= LikertDiscordoPlenamente && l <= LikertConcordoPlenamente
}

// LikertFromName resolves a canonical label.
func LikertFromName(name string) (Likert, bool) {
	for l, n := range likertNames {
		if n == name {
			return l, true
		}
	}
	return 0, false
}

// CauseAnswer is one answer of a gap's root-cause questionnaire.
type CauseAnswer struct {
	AssessmentID string    `json:"assessment_id"`
	GapID        string    `json:"gap_id"`
	QuestionID   string    `json:"question_id"`
	Answer       Likert    `json:"answer"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CauseEvidence links a classification to the answers that support it.
type CauseEvidence struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	Label      string `json:"label"`
	Cause      string `json:"cause"`
}

// CauseClassification is the classified root cause of a gap.
type CauseClassification struct {
	AssessmentID   string          `json:"assessment_id"`
	GapID          string          `json:"gap_id"`
	CausePrimary   string          `json:"cause_primary"`
	CauseSecondary string          `json:"cause_secondary,omitempty"`
	Evidence       []CauseEvidence `json:"evidence"`
	ClassifiedAt   time.Time       `json:"classified_at"`
}
