package cmd

import (
	"fmt"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/textnorm"
	"github.com/spf13/cobra"
)

var learnCmd = &cobra.Command{
	Use:   "learn ORIGINAL CORRECTED",
	Short: "Teach the matcher that ORIGINAL means CORRECTED",
	Long: `Record a correction from misrecognized text to the command that was meant.
Later matches of ORIGINAL return CORRECTED with source "learned".

Examples:
  voxnav learn "tap setings" "tap settings"
  voxnav learn --confidence 0.8 "go bak" "go back"`,
	Args: cobra.ExactArgs(2),
	RunE: runLearn,
}

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "List learned corrections or vocabulary",
	Args:  cobra.NoArgs,
	RunE:  runCorrections,
}

func init() {
	rootCmd.AddCommand(learnCmd)
	learnCmd.Flags().Float64("confidence", 1, "Confidence of the correction in [0,1]")

	rootCmd.AddCommand(correctionsCmd)
	correctionsCmd.Flags().Bool("vocabulary", false, "List vocabulary entries instead of corrections")
}

func runLearn(cmd *cobra.Command, args []string) error {
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	original, corrected := args[0], args[1]
	key := textnorm.Normalize(original)
	if key != "" && key == textnorm.Normalize(corrected) {
		return fmt.Errorf("original and corrected text are the same after normalization: %q", key)
	}

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.match.Learn(cmd.Context(), original, corrected, confidence); err != nil {
		return report(err)
	}
	for _, c := range s.match.Corrections() {
		if c.OriginalText == key {
			return output.Print(c)
		}
	}
	return fmt.Errorf("correction for %q was not stored", key)
}

func runCorrections(cmd *cobra.Command, args []string) error {
	vocabulary, _ := cmd.Flags().GetBool("vocabulary")

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if vocabulary {
		v := s.match.Vocabulary()
		if v == nil {
			v = []model.VocabularyEntry{}
		}
		return output.Print(v)
	}
	c := s.match.Corrections()
	if c == nil {
		c = []model.LearnedCorrection{}
	}
	return output.Print(c)
}
