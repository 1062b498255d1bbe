package cmd

import (
	"fmt"
	"strings"

	"github.com/mj1618/voxnav/internal/engine"
	"github.com/mj1618/voxnav/internal/matcher"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/resolver"
	"github.com/mj1618/voxnav/internal/server"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve TEXT...",
	Short: "Resolve a spoken command to an action on one element",
	Long: `Ingest the given snapshots, then match and resolve the command against the
last one. The action is printed but not performed and nothing is learned.

Examples:
  voxnav resolve --snapshot inbox.yaml tap settings
  voxnav resolve --snapshot inbox.yaml "press the second button"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

var sayCmd = &cobra.Command{
	Use:   "say TEXT...",
	Short: "Resolve and perform a spoken command",
	Long: `Like resolve, but hands the action to the executor and reports the result.
A successful action refreshes its element; a fuzzy match at or above the learn
gate is learned as a correction.

Examples:
  voxnav say --snapshot inbox.yaml --confidence 0.9 tap setings`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSay,
}

func init() {
	for _, c := range []*cobra.Command{resolveCmd, sayCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringSlice("snapshot", nil, "Snapshot file defining the current screen (repeatable; the last batch wins)")
		c.Flags().String("locale", "", "Locale tag of the recognizer (e.g. en-US)")
		_ = c.MarkFlagRequired("snapshot")
	}
	sayCmd.Flags().Float64("confidence", 1, "Recognizer confidence in [0,1]")
}

// ResolveResult is the output of resolve.
type ResolveResult struct {
	OK     bool                 `yaml:"ok"     json:"ok"`
	Match  matcher.MatchResult  `yaml:"match"  json:"match"`
	Intent string               `yaml:"intent" json:"intent"`
	Action model.ResolvedAction `yaml:"action" json:"action"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	snapshots, _ := cmd.Flags().GetStringSlice("snapshot")
	locale, _ := cmd.Flags().GetString("locale")

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.ingestFiles(cmd.Context(), snapshots); err != nil {
		return report(err)
	}
	m := s.match.Match(cmd.Context(), strings.Join(args, " "), locale)
	intent, err := resolver.ParseCommand(m.Text)
	if err != nil {
		return report(err)
	}
	action, err := s.eng.Resolver().ResolveAction(cmd.Context(), intent)
	if err != nil {
		return report(err)
	}
	return output.Print(ResolveResult{OK: true, Match: m, Intent: intent.String(), Action: action})
}

func runSay(cmd *cobra.Command, args []string) error {
	snapshots, _ := cmd.Flags().GetStringSlice("snapshot")
	locale, _ := cmd.Flags().GetString("locale")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("--confidence must be within [0,1], got %v", confidence)
	}

	s, err := openSession(cmd.Context(), platform.NewLogExecutor(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.ingestFiles(cmd.Context(), snapshots); err != nil {
		return report(err)
	}
	o, err := s.eng.Do(cmd.Context(), engine.Command{
		Text:       strings.Join(args, " "),
		Locale:     locale,
		Confidence: confidence,
	})
	if err != nil {
		return report(err)
	}
	return output.Print(server.CommandResponse{OK: true, Intent: o.Intent.String(), Outcome: o})
}
