// Package actionfit derives next-best-action suggestions from failure
// signals in raw answers. It never synthesizes a fallback: a process whose
// signals do not clear the match threshold gets no suggestion and is
// reported as a content gap instead.
package actionfit

import (
	"sort"

	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
)

const (
	// FailureMaximum is the highest answer value that counts as a failure
	// signal.
	FailureMaximum = 2
	// MatchThreshold is the minimum number of an action's signals that must
	// be failing. Single-signal matches are rejected.
	MatchThreshold = 2
)

// Content gap reasons.
const (
	ReasonNoFailureSignals = "no_failure_signals"
	ReasonBelowThreshold   = "below_match_threshold"
	ReasonNoCatalogActions = "no_catalog_actions"
)

// Suggestion is a catalog action whose signals matched the answers.
type Suggestion struct {
	ActionKey      string            `json:"action_key"`
	ProcessKey     string            `json:"process_key"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	MatchedSignals []string          `json:"matched_signals"`
	MatchCount     int               `json:"match_count"`
	Evidence       []model.TraceItem `json:"evidence"`
	DoD            []string          `json:"dod"`
	Dependencies   []string          `json:"dependencies,omitempty"`
	ProcessScore   float64           `json:"process_score"`
	IsMechanism    bool              `json:"is_mechanism"`
}

// ContentGap records a process for which the catalog has no action that
// clears the threshold.
type ContentGap struct {
	ProcessKey  string   `json:"process_key"`
	Reason      string   `json:"reason"`
	SignalsTrue []string `json:"signals_true"`
}

// Result is the output of Match.
type Result struct {
	Suggestions []Suggestion `json:"suggestions"`
	ContentGaps []ContentGap `json:"content_gaps"`
}

// Keys returns the suggested action keys in rank order.
func (r Result) Keys() []string {
	out := make([]string, len(r.Suggestions))
	for i, s := range r.Suggestions {
		out[i] = s.ActionKey
	}
	return out
}

// SignalsTrue returns, per process, the failing questions and their values.
func SignalsTrue(answers []model.Answer) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, a := range answers {
		if a.Value > FailureMaximum {
			continue
		}
		if out[a.ProcessKey] == nil {
			out[a.ProcessKey] = make(map[string]int)
		}
		out[a.ProcessKey][a.QuestionKey] = a.Value
	}
	return out
}

// Match evaluates every catalog action against the answers. Actions whose
// key is in exclude are dropped after matching, so an excluded action does
// not turn its process into a content gap.
func Match(cat *catalog.Catalog, answers []model.Answer, scores []model.ProcessScore, exclude map[string]bool) Result {
	signals := SignalsTrue(answers)
	scoreIdx := model.ScoreIndex(scores)
	answered := make(map[string]bool)
	for _, a := range answers {
		answered[a.ProcessKey] = true
	}

	res := Result{Suggestions: []Suggestion{}, ContentGaps: []ContentGap{}}
	for _, p := range cat.Processes {
		if !answered[p.Key] {
			continue
		}
		procSignals := signals[p.Key]
		actions := cat.ActionsForProcess(p.Key)

		var candidates []Suggestion
		for _, a := range actions {
			s, ok := matchAction(a, procSignals)
			if !ok {
				continue
			}
			s.ProcessScore = scoreIdx[p.Key].ScoreNumeric
			candidates = append(candidates, s)
		}

		if len(candidates) == 0 {
			res.ContentGaps = append(res.ContentGaps, ContentGap{
				ProcessKey:  p.Key,
				Reason:      gapReason(procSignals, actions),
				SignalsTrue: sortedKeys(procSignals),
			})
			continue
		}
		for _, s := range candidates {
			if exclude[s.ActionKey] {
				continue
			}
			res.Suggestions = append(res.Suggestions, s)
		}
	}

	sort.SliceStable(res.Suggestions, func(i, j int) bool {
		a, b := res.Suggestions[i], res.Suggestions[j]
		if a.MatchCount != b.MatchCount {
			return a.MatchCount > b.MatchCount
		}
		if a.ProcessScore != b.ProcessScore {
			return a.ProcessScore < b.ProcessScore
		}
		return cat.ActionOrder(a.ActionKey) < cat.ActionOrder(b.ActionKey)
	})
	return res
}

func matchAction(a catalog.Action, procSignals map[string]int) (Suggestion, bool) {
	var matched []string
	var evidence []model.TraceItem
	for _, sig := range a.Signals {
		v, ok := procSignals[sig]
		if !ok {
			continue
		}
		matched = append(matched, sig)
		evidence = append(evidence, model.TraceItem{ProcessKey: a.ProcessKey, QuestionKey: sig, Value: v})
	}
	if len(matched) < MatchThreshold {
		return Suggestion{}, false
	}
	return Suggestion{
		ActionKey:      a.Key,
		ProcessKey:     a.ProcessKey,
		Title:          a.Title,
		Description:    a.Description,
		MatchedSignals: matched,
		MatchCount:     len(matched),
		Evidence:       evidence,
		DoD:            append([]string(nil), a.DoD...),
		Dependencies:   append([]string(nil), a.Dependencies...),
	}, true
}

func gapReason(procSignals map[string]int, actions []catalog.Action) string {
	switch {
	case len(procSignals) == 0:
		return ReasonNoFailureSignals
	case len(actions) == 0:
		return ReasonNoCatalogActions
	default:
		return ReasonBelowThreshold
	}
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
