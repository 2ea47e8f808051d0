package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/raiox/internal/model"
)

//go:embed default.yaml
var defaultYAML []byte

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes, validates and indexes a catalog document. The YAML has a
// top-level "catalog" key.
func Parse(data []byte) (*Catalog, error) {
	var wrapper struct {
		Catalog Catalog `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	c := &wrapper.Catalog
	if err := Validate(c); err != nil {
		return nil, err
	}
	c.index()
	return c, nil
}

func (c *Catalog) index() {
	c.processByKey = make(map[string]int, len(c.Processes))
	for i, p := range c.Processes {
		c.processByKey[p.Key] = i
	}
	c.actionByKey = make(map[string]int, len(c.Actions))
	c.actionsByProc = make(map[string][]int)
	for i, a := range c.Actions {
		c.actionByKey[a.Key] = i
		c.actionsByProc[a.ProcessKey] = append(c.actionsByProc[a.ProcessKey], i)
	}
	c.gapByID = make(map[string]int, len(c.Gaps))
	for i, g := range c.Gaps {
		c.gapByID[g.ID] = i
	}
	c.causeByKey = make(map[string]int, len(c.CauseClasses))
	for i, cc := range c.CauseClasses {
		c.causeByKey[cc.Key] = i
	}
}

// Validate checks that a catalog is internally consistent. Processes without
// questions are accepted here; scoring rejects them at submit time.
func Validate(c *Catalog) error {
	var errs []string

	if strings.TrimSpace(c.Version) == "" {
		errs = append(errs, "version is required")
	}

	dims := make(map[model.Dimension]bool)
	for _, d := range model.Dimensions() {
		dims[d] = true
	}

	procQuestions := make(map[string]map[string]bool)
	for _, p := range c.Processes {
		if p.Key == "" {
			errs = append(errs, "process with empty key")
			continue
		}
		if _, dup := procQuestions[p.Key]; dup {
			errs = append(errs, fmt.Sprintf("duplicate process %s", p.Key))
			continue
		}
		if !p.TypicalImpactBand.Valid() {
			errs = append(errs, fmt.Sprintf("process %s: invalid typical_impact_band %q", p.Key, p.TypicalImpactBand))
		}
		qs := make(map[string]bool)
		for _, q := range p.Questions {
			if qs[q.Key] {
				errs = append(errs, fmt.Sprintf("process %s: duplicate question %s", p.Key, q.Key))
			}
			qs[q.Key] = true
			if !dims[q.Dimension] {
				errs = append(errs, fmt.Sprintf("process %s: question %s has invalid dimension %q", p.Key, q.Key, q.Dimension))
			}
		}
		procQuestions[p.Key] = qs
	}

	actions := make(map[string]bool)
	for _, a := range c.Actions {
		if actions[a.Key] {
			errs = append(errs, fmt.Sprintf("duplicate action %s", a.Key))
		}
		actions[a.Key] = true
		qs, ok := procQuestions[a.ProcessKey]
		if !ok {
			errs = append(errs, fmt.Sprintf("action %s: unknown process %s", a.Key, a.ProcessKey))
			continue
		}
		for _, s := range a.Signals {
			if !qs[s] {
				errs = append(errs, fmt.Sprintf("action %s: signal %s is not a %s question", a.Key, s, a.ProcessKey))
			}
		}
		if len(a.DoD) == 0 {
			errs = append(errs, fmt.Sprintf("action %s: dod checklist is empty", a.Key))
		}
	}

	causes := make(map[string]bool)
	for _, cc := range c.CauseClasses {
		causes[cc.Key] = true
	}

	gaps := make(map[string]bool)
	for _, g := range c.Gaps {
		if gaps[g.ID] {
			errs = append(errs, fmt.Sprintf("duplicate gap %s", g.ID))
		}
		gaps[g.ID] = true
		if _, ok := procQuestions[g.ProcessKey]; !ok {
			errs = append(errs, fmt.Sprintf("gap %s: unknown process %s", g.ID, g.ProcessKey))
		}
		if len(g.Questions) == 0 {
			errs = append(errs, fmt.Sprintf("gap %s: no cause questions", g.ID))
		}
		gapCauses := make(map[string]bool)
		for _, gc := range g.Causes {
			if !causes[gc.Cause] {
				errs = append(errs, fmt.Sprintf("gap %s: unknown cause class %s", g.ID, gc.Cause))
			}
			gapCauses[gc.Cause] = true
			n := len(gc.Mechanism.ActionKeys)
			if n < 1 || n > 3 {
				errs = append(errs, fmt.Sprintf("gap %s/%s: mechanism needs 1 to 3 actions, got %d", g.ID, gc.Cause, n))
			}
			for _, k := range gc.Mechanism.ActionKeys {
				if !actions[k] {
					errs = append(errs, fmt.Sprintf("gap %s/%s: unknown mechanism action %s", g.ID, gc.Cause, k))
				}
			}
		}
		qids := make(map[string]bool)
		for _, q := range g.Questions {
			if qids[q.ID] {
				errs = append(errs, fmt.Sprintf("gap %s: duplicate question %s", g.ID, q.ID))
			}
			qids[q.ID] = true
			if !gapCauses[q.Cause] {
				errs = append(errs, fmt.Sprintf("gap %s: question %s points at cause %s outside the gap", g.ID, q.ID, q.Cause))
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("catalog: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
