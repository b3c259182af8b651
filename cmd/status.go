package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evergreen/internal/configtree"
	"evergreen/internal/persistence"
	evgstrings "evergreen/pkg/strings"
)

// newStatusCmd implements the `evergreend status` subcommand: replay the
// persisted Config Tree for -r's root and render each component's
// last-known state without needing a running daemon to talk to.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last-persisted state of every component",
		RunE: func(c *cobra.Command, args []string) error {
			root := rootPath
			if root == "" {
				root = viper.GetString("root")
			}
			if root == "" {
				root = "."
			}

			tree := configtree.New()
			defer tree.Close()
			if err := persistence.Replay(root, tree); err != nil {
				return err
			}

			node, ok := tree.Lookup("/services")
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"SERVICE", "STATE", "VERSION"})
			if ok {
				for _, name := range node.ChildNames() {
					state, _ := tree.Read("/services/" + name + "/state")
					version, _ := tree.Read("/services/" + name + "/version")
					t.AppendRow(table.Row{name, fmtCell(state), fmtCell(version)})
				}
			}
			t.Render()
			return nil
		},
	}
}

func fmtCell(v interface{}) string {
	if v == nil {
		return "-"
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	return evgstrings.TruncateDescription(s, evgstrings.DefaultDescriptionMaxLen)
}
