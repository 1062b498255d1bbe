package cmd

import (
	"fmt"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known containers or the elements of one container",
	Long: `Without --container, list every container the registry knows with its
version and epoch. With --container, list the elements of its current epoch.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().String("container", "", "Container (app/package) id")
	listCmd.Flags().String("role", "", "Only elements with this role (e.g. btn, input)")
	listCmd.Flags().String("text", "", "Only elements whose text or description contains this")
	listCmd.Flags().Bool("interactive", false, "Only interactive elements with on-screen bounds")
	listCmd.Flags().Bool("all-epochs", false, "Include elements of older epochs")
}

func runList(cmd *cobra.Command, args []string) error {
	container, _ := cmd.Flags().GetString("container")
	role, _ := cmd.Flags().GetString("role")
	text, _ := cmd.Flags().GetString("text")
	interactive, _ := cmd.Flags().GetBool("interactive")
	allEpochs, _ := cmd.Flags().GetBool("all-epochs")

	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if container == "" {
		containers := s.reg.Containers()
		if containers == nil {
			containers = []model.Container{}
		}
		return output.Print(containers)
	}

	c, ok := s.reg.Container(container)
	if !ok {
		return fmt.Errorf("unknown container %q", container)
	}

	var elements []model.Element
	for _, el := range s.reg.Elements(container) {
		if !allEpochs && el.Epoch != c.Epoch {
			continue
		}
		if role != "" && el.Role != model.MapRole(role) {
			continue
		}
		elements = append(elements, el)
	}
	elements = model.FilterByText(elements, text)
	if interactive {
		elements = model.FilterInteractive(elements)
	}
	if elements == nil {
		elements = []model.Element{}
	}
	return output.Print(output.ElementsResult{
		Container: container,
		Epoch:     c.Epoch,
		TS:        nowUnix(),
		Elements:  elements,
	})
}
