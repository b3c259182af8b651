package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the evergreend version",
		RunE: func(c *cobra.Command, args []string) error {
			fmt.Printf("evergreend version %s\n", c.Root().Version)
			return nil
		},
	}
}
