package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cover cache",
	Long:  `Clear deletes every derived cover and every extracted embedded artwork file. The cache areas themselves are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Resolver.ClearCache(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", a.Config.CacheRoot)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
