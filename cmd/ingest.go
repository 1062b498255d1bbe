package cmd

import (
	"github.com/mj1618/voxnav/internal/output"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Record UI snapshots in the element registry",
	Long: `Ingest one or more snapshot files into the registry. Each file holds YAML
documents or a JSON batch (or array of batches) of a single container.

Elements are assigned stable identities; an element seen again keeps its
identity and has its last-seen time refreshed.

Examples:
  voxnav ingest mail-inbox.yaml
  voxnav ingest --format json recording/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.ingestFiles(cmd.Context(), args)
	if err != nil {
		return report(err)
	}
	return output.Print(results)
}
