// Package catalog holds the versioned diagnostic catalog: processes and their
// questions, remediation actions, gaps with their cause questionnaires and
// mechanisms, and the user-facing copy. A Catalog is built once by Parse and
// is read-only afterwards.
package catalog

import (
	"github.com/sells-group/raiox/internal/model"
)

// Catalog is the full diagnostic configuration.
type Catalog struct {
	Version      string       `yaml:"version"`
	Processes    []Process    `yaml:"processes"`
	Actions      []Action     `yaml:"actions"`
	Gaps         []Gap        `yaml:"gaps"`
	CauseClasses []CauseClass `yaml:"cause_classes"`
	Fallback     CopyText     `yaml:"fallback"`

	processByKey  map[string]int
	actionByKey   map[string]int
	gapByID       map[string]int
	causeByKey    map[string]int
	actionsByProc map[string][]int
}

// Process is a business process scored by the diagnostic.
type Process struct {
	Key               string                  `yaml:"key"`
	Name              string                  `yaml:"name"`
	TypicalImpactBand model.Band              `yaml:"typical_impact_band"`
	QuickWin          bool                    `yaml:"quick_win"`
	Questions         []Question              `yaml:"questions"`
	Copy              ProcessCopy             `yaml:"copy"`
	Recommendations   map[model.Band][]string `yaml:"recommendations"`
}

// Question is a 0-10 maturity question tagged with a dimension.
// An empty Segments list means the question applies to every segment.
type Question struct {
	Key       string          `yaml:"key"`
	Text      string          `yaml:"text"`
	Dimension model.Dimension `yaml:"dimension"`
	Segments  []model.Segment `yaml:"segments"`
}

// AppliesTo reports whether the question is asked for seg.
func (q Question) AppliesTo(seg model.Segment) bool {
	if len(q.Segments) == 0 {
		return true
	}
	for _, s := range q.Segments {
		if s == seg {
			return true
		}
	}
	return false
}

// ProcessCopy is the six-pack copy of a process.
type ProcessCopy struct {
	Vazamento CopyText `yaml:"vazamento"`
	Alavanca  CopyText `yaml:"alavanca"`
}

// CopyText is a title/body pair.
type CopyText struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// Action is a remediation action the Action-Fit engine can suggest.
type Action struct {
	Key          string       `yaml:"key"`
	ProcessKey   string       `yaml:"process_key"`
	Title        string       `yaml:"title"`
	Description  string       `yaml:"description"`
	Signals      []string     `yaml:"signals"`
	DoD          []string     `yaml:"dod"`
	Dependencies Dependencies `yaml:"dependencies"`
}

// Gap is a systemic weakness with a fixed Likert-5 cause questionnaire.
type Gap struct {
	ID         string          `yaml:"id"`
	ProcessKey string          `yaml:"process_key"`
	Title      string          `yaml:"title"`
	Questions  []CauseQuestion `yaml:"questions"`
	Causes     []GapCause      `yaml:"causes"`
}

// CauseQuestion is an agreement statement pointing at one cause class.
type CauseQuestion struct {
	ID    string `yaml:"id" json:"id"`
	Text  string `yaml:"text" json:"text"`
	Label string `yaml:"label" json:"label"`
	Cause string `yaml:"cause" json:"cause"`
}

// GapCause binds a cause class to its mechanism for a given gap.
type GapCause struct {
	Cause     string    `yaml:"cause"`
	Copy      CopyText  `yaml:"copy"`
	Mechanism Mechanism `yaml:"mechanism"`
}

// Mechanism is the "real fix" for a gap+cause pair.
type Mechanism struct {
	Key        string   `yaml:"key"`
	Title      string   `yaml:"title"`
	Body       string   `yaml:"body"`
	ActionKeys []string `yaml:"action_keys"`
}

// CauseClass is a root-cause label.
type CauseClass struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Process returns the process with the given key.
func (c *Catalog) Process(key string) (*Process, bool) {
	i, ok := c.processByKey[key]
	if !ok {
		return nil, false
	}
	return &c.Processes[i], true
}

// ProcessKeys returns every process key in catalog order.
func (c *Catalog) ProcessKeys() []string {
	keys := make([]string, len(c.Processes))
	for i, p := range c.Processes {
		keys[i] = p.Key
	}
	return keys
}

// QuestionsFor returns the questions of a process asked for seg.
func (c *Catalog) QuestionsFor(processKey string, seg model.Segment) []Question {
	p, ok := c.Process(processKey)
	if !ok {
		return nil
	}
	var out []Question
	for _, q := range p.Questions {
		if q.AppliesTo(seg) {
			out = append(out, q)
		}
	}
	return out
}

// Question looks up a question within a process.
func (c *Catalog) Question(processKey, questionKey string) (Question, bool) {
	p, ok := c.Process(processKey)
	if !ok {
		return Question{}, false
	}
	for _, q := range p.Questions {
		if q.Key == questionKey {
			return q, true
		}
	}
	return Question{}, false
}

// TotalQuestions counts the questions asked for seg across all processes.
func (c *Catalog) TotalQuestions(seg model.Segment) int {
	n := 0
	for _, p := range c.Processes {
		n += len(c.QuestionsFor(p.Key, seg))
	}
	return n
}

// Action returns the action with the given key.
func (c *Catalog) Action(key string) (*Action, bool) {
	i, ok := c.actionByKey[key]
	if !ok {
		return nil, false
	}
	return &c.Actions[i], true
}

// ActionsForProcess returns the actions of a process in catalog order.
func (c *Catalog) ActionsForProcess(processKey string) []Action {
	idx := c.actionsByProc[processKey]
	out := make([]Action, len(idx))
	for i, j := range idx {
		out[i] = c.Actions[j]
	}
	return out
}

// ActionOrder returns the catalog position of an action, or -1.
func (c *Catalog) ActionOrder(key string) int {
	if i, ok := c.actionByKey[key]; ok {
		return i
	}
	return -1
}

// Gap returns the gap with the given id.
func (c *Catalog) Gap(id string) (*Gap, bool) {
	i, ok := c.gapByID[id]
	if !ok {
		return nil, false
	}
	return &c.Gaps[i], true
}

// CauseClass returns the cause class with the given key.
func (c *Catalog) CauseClass(key string) (*CauseClass, bool) {
	i, ok := c.causeByKey[key]
	if !ok {
		return nil, false
	}
	return &c.CauseClasses[i], true
}

// GapCause returns the cause binding of a gap.
func (c *Catalog) GapCause(gapID, cause string) (*GapCause, bool) {
	g, ok := c.Gap(gapID)
	if !ok {
		return nil, false
	}
	for i := range g.Causes {
		if g.Causes[i].Cause == cause {
			return &g.Causes[i], true
		}
	}
	return nil, false
}

// MechanismActionKeys returns the mechanism actions of a gap+cause pair.
func (c *Catalog) MechanismActionKeys(gapID, cause string) []string {
	gc, ok := c.GapCause(gapID, cause)
	if !ok {
		return nil
	}
	return append([]string(nil), gc.Mechanism.ActionKeys...)
}

// Recommendations returns the recommendations of a process for a band.
func (c *Catalog) Recommendations(processKey string, band model.Band) []string {
	p, ok := c.Process(processKey)
	if !ok {
		return nil
	}
	return append([]string(nil), p.Recommendations[band]...)
}
