package cmd

import (
	"errors"

	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict old and least recently used registry state",
	Long: `Remove elements not seen within --max-age, then the least recently used
elements until at most --max-elements remain. Corrections and vocabulary not
used within --max-age are removed too. Defaults come from the config.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().Int("max-elements", 0, "Keep at most this many elements (default from config)")
	pruneCmd.Flags().Duration("max-age", 0, "Remove state unused for longer than this (default from config)")
}

// PruneResult is the output of prune.
type PruneResult struct {
	OK          bool `yaml:"ok"          json:"ok"`
	Elements    int  `yaml:"elements"    json:"elements"`
	Corrections int  `yaml:"corrections" json:"corrections"`
	Vocabulary  int  `yaml:"vocabulary"  json:"vocabulary"`
	Remaining   int  `yaml:"remaining"   json:"remaining"`
}

func runPrune(cmd *cobra.Command, args []string) error {
	policy := registry.PrunePolicy{
		MaxElements: cfg.Registry.MaxElements,
		MaxAge:      cfg.Registry.MaxAge,
	}
	if cmd.Flags().Changed("max-elements") {
		policy.MaxElements, _ = cmd.Flags().GetInt("max-elements")
	}
	if cmd.Flags().Changed("max-age") {
		policy.MaxAge, _ = cmd.Flags().GetDuration("max-age")
	}
	if policy.MaxElements < 0 || policy.MaxAge < 0 {
		return errors.New("--max-elements and --max-age must not be negative")
	}

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.reg.Prune(cmd.Context(), policy)
	if err != nil {
		return report(err)
	}
	var c, v int
	if policy.MaxAge > 0 {
		if c, v, err = s.match.Prune(cmd.Context(), policy.MaxAge); err != nil {
			return report(err)
		}
	}
	return output.Print(PruneResult{
		OK:          true,
		Elements:    n,
		Corrections: c,
		Vocabulary:  v,
		Remaining:   s.reg.Len(),
	})
}

