package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/raiox/internal/actionfit"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/findings"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/rootcause"
	"github.com/sells-group/raiox/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score an answers file without a database",
	Long: `Runs the scoring engine, gap detection, the six-pack generator and the
action-fit engine over a YAML answers file.

The file maps process keys to question answers:

  segment: C
  answers:
    ADM_FIN:
      fluxo_caixa_existe: 3
      fluxo_caixa_rotina: 2

Examples:
  score --answers answers.yaml
  score --answers answers.yaml --format json`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("answers", "", "path to the YAML answers file (required)")
	f.String("format", "table", "output format: table or json")
	f.String("catalog", "", "catalog file (default from config, else embedded)")
	_ = scoreCmd.MarkFlagRequired("answers")
	rootCmd.AddCommand(scoreCmd)
}

// answersFile is the offline input of the score command.
type answersFile struct {
	Segment string                    `yaml:"segment"`
	Answers map[string]map[string]int `yaml:"answers"`
}

// scoreReport is the offline preview of a submit.
type scoreReport struct {
	CatalogVersion string                 `json:"catalog_version"`
	Segment        model.Segment          `json:"segment"`
	Completeness   scoring.Completeness   `json:"completeness"`
	Scores         []model.ProcessScore   `json:"scores"`
	Gaps           []model.GapInstance    `json:"gaps"`
	RaiosX         model.SixPack          `json:"raios_x"`
	Suggestions    []actionfit.Suggestion `json:"suggestions"`
	ContentGaps    []actionfit.ContentGap `json:"content_gaps"`
}

func runScore(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate("offline"); err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("answers")
	format, _ := cmd.Flags().GetString("format")
	catalogPath, _ := cmd.Flags().GetString("catalog")
	if format != "table" && format != "json" {
		return eris.Errorf("score: --format must be table or json (got %q)", format)
	}
	if catalogPath == "" {
		catalogPath = cfg.Catalog.Path
	}

	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	in, err := readAnswersFile(path)
	if err != nil {
		return err
	}
	report, err := buildScoreReport(cat, in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(report), "score: encode report")
	}
	formatScoreReport(out, report)
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func readAnswersFile(path string) (*answersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "score: read %s", path)
	}
	var in answersFile
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, eris.Wrapf(err, "score: parse %s", path)
	}
	return &in, nil
}

func buildScoreReport(cat *catalog.Catalog, in *answersFile) (*scoreReport, error) {
	seg, ok := model.ParseSegment(in.Segment)
	if !ok {
		return nil, eris.Errorf("score: invalid segment %q", in.Segment)
	}
	const id = "offline"

	var answers []model.Answer
	for _, processKey := range cat.ProcessKeys() {
		for _, q := range cat.QuestionsFor(processKey, seg) {
			v, ok := in.Answers[processKey][q.Key]
			if !ok {
				continue
			}
			if err := scoring.ValidateAnswer(cat, seg, processKey, q.Key, v); err != nil {
				return nil, eris.Wrapf(err, "score: %s.%s", processKey, q.Key)
			}
			answers = append(answers, model.Answer{AssessmentID: id, ProcessKey: processKey, QuestionKey: q.Key, Value: v})
		}
	}

	report := &scoreReport{
		CatalogVersion: cat.Version,
		Segment:        seg,
		Completeness:   scoring.CheckCompleteness(cat, seg, answers),
	}
	scores, err := scoring.Score(cat, id, seg, answers)
	if err != nil {
		return nil, eris.Wrap(err, "score: run scoring")
	}
	report.Scores = scores
	report.Gaps = rootcause.DetectGaps(id, scores, time.Now().UTC())

	fs, err := findings.Generate(cat, findings.Input{
		AssessmentID: id,
		Segment:      seg,
		Scores:       scores,
		Answers:      answers,
		Gaps:         report.Gaps,
	})
	if err != nil {
		return nil, eris.Wrap(err, "score: generate findings")
	}
	report.RaiosX = model.SplitFindings(fs)

	fit := actionfit.Match(cat, answers, scores, nil)
	report.Suggestions = fit.Suggestions
	report.ContentGaps = fit.ContentGaps
	return report, nil
}

func formatScoreReport(out io.Writer, r *scoreReport) {
	_, _ = fmt.Fprintf(out, "Catalog %s, segment %s, %d/%d answers\n\n",
		r.CatalogVersion, r.Segment, r.Completeness.AnsweredCount, r.Completeness.TotalExpected)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROCESS\tSCORE\tBAND\tRULE\tANSWERS")
	_, _ = fmt.Fprintln(w, "-------\t-----\t----\t----\t-------")
	for _, s := range r.Scores {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%d\n", s.ProcessKey, s.ScoreNumeric, s.Band, s.RuleUsed, s.AnswerCount)
	}
	_ = w.Flush()

	printFindings(out, "Vazamentos", r.RaiosX.Vazamentos)
	printFindings(out, "Alavancas", r.RaiosX.Alavancas)

	if len(r.Suggestions) > 0 {
		_, _ = fmt.Fprintln(out, "\nSuggested actions")
		for _, sg := range r.Suggestions {
			_, _ = fmt.Fprintf(out, "  %s (%s, %d signals)\n", sg.ActionKey, sg.ProcessKey, sg.MatchCount)
		}
	}
}

func printFindings(out io.Writer, title string, fs []model.Finding) {
	if len(fs) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%s\n", title)
	for _, f := range fs {
		mark := ""
		if f.IsFallback {
			mark = " [" + f.Payload.GapReason + "]"
		}
		_, _ = fmt.Fprintf(out, "  %d. %s: %s%s\n", f.Position, f.ProcessKey, f.Payload.Title, mark)
	}
}
