// Package findings builds the six-pack: the top three leaks (vazamentos) and
// the top three levers (alavancas) of a submitted assessment.
package findings

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/rootcause"
)

const (
	// PerType is the number of findings of each type.
	PerType = 3
	// TraceSize is the minimum number of answers in a finding's trace.
	TraceSize = 4
	// MaxPrimeiroPasso caps the mechanism actions shown as first steps.
	MaxPrimeiroPasso = 3
)

// Input is everything the generator reads.
type Input struct {
	AssessmentID    string
	Segment         model.Segment
	Scores          []model.ProcessScore
	Answers         []model.Answer
	Gaps            []model.GapInstance
	Classifications []model.CauseClassification
}

// Generate builds the six-pack. It is a pure function of its input.
func Generate(cat *catalog.Catalog, in Input) ([]model.Finding, error) {
	var low, medium []model.ProcessScore
	for _, s := range in.Scores {
		if _, ok := cat.Process(s.ProcessKey); !ok {
			continue
		}
		switch s.Band {
		case model.BandLow:
			low = append(low, s)
		case model.BandMedium:
			medium = append(medium, s)
		}
	}

	rankLeaks(cat, low)
	vaz := low
	if len(vaz) > PerType {
		vaz = vaz[:PerType]
	}

	used := make(map[string]bool, len(vaz))
	for _, s := range vaz {
		used[s.ProcessKey] = true
	}
	rankLevers(cat, medium)
	alav := append([]model.ProcessScore(nil), medium...)
	if len(alav) < PerType {
		var backfill []model.ProcessScore
		for _, s := range low {
			if !used[s.ProcessKey] {
				backfill = append(backfill, s)
			}
		}
		rankLevers(cat, backfill)
		alav = append(alav, backfill...)
	}
	if len(alav) > PerType {
		alav = alav[:PerType]
	}

	g := &generator{
		cat:     cat,
		in:      in,
		gaps:    make(map[string]model.GapInstance),
		classes: make(map[string]model.CauseClassification),
		answers: model.GroupAnswers(in.Answers),
	}
	for _, gi := range in.Gaps {
		g.gaps[gi.GapID] = gi
	}
	for _, cl := range in.Classifications {
		g.classes[cl.GapID] = cl
	}

	out := make([]model.Finding, 0, len(vaz)+len(alav))
	for i, s := range vaz {
		f, err := g.build(model.FindingVazamento, i+1, s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	for i, s := range alav {
		f, err := g.build(model.FindingAlavanca, i+1, s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// rankLeaks orders by typical impact (HIGH first), then score descending,
// then catalog order.
func rankLeaks(cat *catalog.Catalog, scores []model.ProcessScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		pi, pj := mustProcess(cat, scores[i].ProcessKey), mustProcess(cat, scores[j].ProcessKey)
		if pi.TypicalImpactBand.Rank() != pj.TypicalImpactBand.Rank() {
			return pi.TypicalImpactBand.Rank() < pj.TypicalImpactBand.Rank()
		}
		if scores[i].ScoreNumeric != scores[j].ScoreNumeric {
			return scores[i].ScoreNumeric > scores[j].ScoreNumeric
		}
		return processOrder(cat, scores[i].ProcessKey) < processOrder(cat, scores[j].ProcessKey)
	})
}

// rankLevers orders by quick win first, then typical impact, then score
// descending, then catalog order.
func rankLevers(cat *catalog.Catalog, scores []model.ProcessScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		pi, pj := mustProcess(cat, scores[i].ProcessKey), mustProcess(cat, scores[j].ProcessKey)
		if pi.QuickWin != pj.QuickWin {
			return pi.QuickWin
		}
		if pi.TypicalImpactBand.Rank() != pj.TypicalImpactBand.Rank() {
			return pi.TypicalImpactBand.Rank() < pj.TypicalImpactBand.Rank()
		}
		if scores[i].ScoreNumeric != scores[j].ScoreNumeric {
			return scores[i].ScoreNumeric > scores[j].ScoreNumeric
		}
		return processOrder(cat, scores[i].ProcessKey) < processOrder(cat, scores[j].ProcessKey)
	})
}

func mustProcess(cat *catalog.Catalog, key string) *catalog.Process {
	p, _ := cat.Process(key)
	return p
}

func processOrder(cat *catalog.Catalog, key string) int {
	for i, p := range cat.Processes {
		if p.Key == key {
			return i
		}
	}
	return len(cat.Processes)
}

type generator struct {
	cat     *catalog.Catalog
	in      Input
	gaps    map[string]model.GapInstance
	classes map[string]model.CauseClassification
	answers map[string][]model.Answer
}

func (g *generator) build(typ model.FindingType, position int, s model.ProcessScore) (model.Finding, error) {
	p := mustProcess(g.cat, s.ProcessKey)
	copyText := p.Copy.Vazamento
	if typ == model.FindingAlavanca {
		copyText = p.Copy.Alavanca
	}

	f := model.Finding{
		AssessmentID: g.in.AssessmentID,
		Type:         typ,
		Position:     position,
		ProcessKey:   s.ProcessKey,
		Payload: model.FindingPayload{
			ProcessKey:      s.ProcessKey,
			ProcessName:     p.Name,
			Band:            s.Band,
			ScoreNumeric:    s.ScoreNumeric,
			Title:           copyText.Title,
			Body:            copyText.Body,
			Recommendations: g.cat.Recommendations(s.ProcessKey, s.Band),
		},
		Trace: g.trace(s.ProcessKey, typ == model.FindingVazamento),
	}

	if s.Band != model.BandLow {
		return f, nil
	}
	gapID, ok := rootcause.GapFor(s.ProcessKey)
	if !ok {
		return f, nil
	}
	f.Payload.GapID = gapID

	cl, classified := g.classes[gapID]
	if gi, ok := g.gaps[gapID]; !ok || gi.Status != model.GapCauseClassified || !classified {
		f.Payload.Title = g.cat.Fallback.Title
		f.Payload.Body = g.cat.Fallback.Body
		f.Payload.GapReason = model.GapReasonNotClassified
		f.IsFallback = true
		return f, nil
	}

	gc, ok := g.cat.GapCause(gapID, cl.CausePrimary)
	if !ok {
		return model.Finding{}, apperr.CatalogInvalid(
			eris.Errorf("findings: cause %s not defined for gap %s", cl.CausePrimary, gapID))
	}
	f.Payload.Title = gc.Copy.Title
	f.Payload.Body = gc.Copy.Body
	f.Payload.CausePrimary = cl.CausePrimary
	f.Payload.CauseSecondary = cl.CauseSecondary
	if cc, ok := g.cat.CauseClass(cl.CausePrimary); ok {
		f.Payload.CauseLabel = cc.Label
	}
	f.Payload.MechanismKey = gc.Mechanism.Key
	f.Payload.MechanismTitle = gc.Mechanism.Title
	for _, key := range gc.Mechanism.ActionKeys {
		if len(f.Payload.PrimeiroPasso) == MaxPrimeiroPasso {
			break
		}
		a, ok := g.cat.Action(key)
		if !ok {
			continue
		}
		f.Payload.PrimeiroPasso = append(f.Payload.PrimeiroPasso, model.ActionRef{ActionKey: a.Key, Title: a.Title})
	}
	return f, nil
}

// trace returns the most extreme answers of a process: lowest first for
// leaks, highest first for levers. Answers tied with the last slot are kept.
func (g *generator) trace(processKey string, worst bool) []model.TraceItem {
	order := make(map[string]int)
	for i, q := range g.cat.QuestionsFor(processKey, g.in.Segment) {
		order[q.Key] = i
	}
	var items []model.TraceItem
	for _, a := range g.answers[processKey] {
		if _, ok := order[a.QuestionKey]; !ok {
			continue
		}
		items = append(items, model.TraceItem{ProcessKey: processKey, QuestionKey: a.QuestionKey, Value: a.Value})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Value != items[j].Value {
			if worst {
				return items[i].Value < items[j].Value
			}
			return items[i].Value > items[j].Value
		}
		return order[items[i].QuestionKey] < order[items[j].QuestionKey]
	})
	if len(items) <= TraceSize {
		return items
	}
	cut := TraceSize
	for cut < len(items) && items[cut].Value == items[TraceSize-1].Value {
		cut++
	}
	return items[:cut]
}
