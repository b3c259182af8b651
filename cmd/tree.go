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

// newTreeCmd implements the `evergreend tree <path>` subcommand: print
// every leaf under path as it stood at the last persisted commit.
func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <path>",
		Short: "Dump the Config Tree subtree rooted at path",
		Args:  cobra.ExactArgs(1),
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

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"PATH", "VALUE"})
			dumpLeaves(tree, args[0], t)
			t.Render()
			return nil
		},
	}
}

func dumpLeaves(tree *configtree.Tree, path string, t table.Writer) {
	n, ok := tree.Lookup(path)
	if !ok {
		return
	}
	if val, isLeaf := n.Value(); isLeaf {
		rendered := evgstrings.TruncateDescription(fmt.Sprintf("%v", val), evgstrings.DefaultDescriptionMaxLen)
		t.AppendRow(table.Row{path, rendered})
		return
	}
	for _, name := range n.ChildNames() {
		child := path
		if child == "/" {
			child = ""
		}
		dumpLeaves(tree, child+"/"+name, t)
	}
}
