package cmd

import (
	"strings"

	"github.com/mj1618/voxnav/internal/output"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match TEXT...",
	Short: "Match recognized speech to a known command",
	Long: `Normalize the text and match it against learned corrections, the command
catalog and, failing both, the closest catalog phrase or known vocabulary.
Prints the matched text, its source (learned, exact, fuzzy, none) and confidence.

Examples:
  voxnav match tap setings
  voxnav match --locale de "tippe einstellungen"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().String("locale", "", "Locale tag of the recognizer (e.g. en-US)")
}

func runMatch(cmd *cobra.Command, args []string) error {
	locale, _ := cmd.Flags().GetString("locale")

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	return output.Print(s.match.Match(cmd.Context(), strings.Join(args, " "), locale))
}
