package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/rootcause"
	"github.com/sells-group/raiox/internal/scoring"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the process catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a catalog file before deploying it",
	Long:  "Parses the catalog and runs the same integrity checks as submit for every segment. Without a file the configured catalog is checked.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Catalog.Path
		if len(args) == 1 {
			path = args[0]
		}
		cat, err := loadCatalog(path)
		if err != nil {
			return err
		}
		if err := checkCatalog(cat); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "catalog %s ok: %d processes, %d actions, %d gaps\n",
			cat.Version, len(cat.Processes), len(cat.Actions), len(cat.Gaps))
		for _, seg := range []model.Segment{model.SegmentC, model.SegmentI, model.SegmentS} {
			_, _ = fmt.Fprintf(out, "  segment %s: %d questions\n", seg, cat.TotalQuestions(seg))
		}
		return nil
	},
}

func checkCatalog(cat *catalog.Catalog) error {
	for _, seg := range []model.Segment{model.SegmentC, model.SegmentI, model.SegmentS} {
		if err := scoring.CheckCatalog(cat, seg); err != nil {
			return eris.Wrapf(err, "catalog: segment %s", seg)
		}
	}
	return eris.Wrap(rootcause.CheckCatalog(cat), "catalog: root causes")
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}
