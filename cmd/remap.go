package cmd

import (
	"fmt"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/spf13/cobra"
)

var remapCmd = &cobra.Command{
	Use:   "remap CONTAINER",
	Short: "Move a container to a new version epoch",
	Long: `Open a new epoch for CONTAINER. Elements of the old epoch become stale and
are continued by matching elements observed in the new epoch.

Either give the new app version with --version, or explicit epochs with
--from and --to.

Examples:
  voxnav remap com.example.mail --version 2.1.0
  voxnav remap com.example.mail --from 1 --to 3`,
	Args: cobra.ExactArgs(1),
	RunE: runRemap,
}

func init() {
	rootCmd.AddCommand(remapCmd)
	remapCmd.Flags().String("version", "", "New app version")
	remapCmd.Flags().Int("from", 0, "Epoch to remap from")
	remapCmd.Flags().Int("to", 0, "Epoch to remap to")
	remapCmd.MarkFlagsMutuallyExclusive("version", "from")
	remapCmd.MarkFlagsMutuallyExclusive("version", "to")
	remapCmd.MarkFlagsRequiredTogether("from", "to")
}

// RemapResult is the output of remap.
type RemapResult struct {
	OK        bool            `yaml:"ok"        json:"ok"`
	Container model.Container `yaml:"container" json:"container"`
	Stale     int             `yaml:"stale"     json:"stale"`
}

func runRemap(cmd *cobra.Command, args []string) error {
	version, _ := cmd.Flags().GetString("version")
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")
	if version == "" && !cmd.Flags().Changed("from") {
		return fmt.Errorf("--version or --from/--to is required")
	}

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	id := args[0]
	if version != "" {
		before, known := s.reg.Container(id)
		c, err := s.reg.ObserveContainer(cmd.Context(), id, version)
		if err != nil {
			return report(err)
		}
		stale := 0
		if known && c.Epoch != before.Epoch {
			for _, el := range s.reg.Elements(id) {
				if el.Epoch == before.Epoch {
					stale++
				}
			}
		}
		return output.Print(RemapResult{OK: true, Container: c, Stale: stale})
	}

	n, err := s.reg.RemapEpoch(cmd.Context(), id, from, to)
	if err != nil {
		return report(err)
	}
	c, _ := s.reg.Container(id)
	return output.Print(RemapResult{OK: true, Container: c, Stale: n})
}
