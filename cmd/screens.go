package cmd

import (
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/spf13/cobra"
)

var screensCmd = &cobra.Command{
	Use:   "screens",
	Short: "List recorded screens with visit counts and transitions",
	Args:  cobra.NoArgs,
	RunE:  runScreens,
}

func init() {
	rootCmd.AddCommand(screensCmd)
	screensCmd.Flags().String("container", "", "Only screens of this container")
}

func runScreens(cmd *cobra.Command, args []string) error {
	container, _ := cmd.Flags().GetString("container")

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	screens := s.reg.Screens(container)
	if screens == nil {
		screens = []model.Screen{}
	}
	return output.Print(screens)
}
