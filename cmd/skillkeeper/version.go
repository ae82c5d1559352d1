package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/makgunay/claude-swift-skills/pkg/version"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(_ *cobra.Command, _ []string) error {
		info := version.Get()
		if !versionJSON {
			fmt.Println(info.String())
			return nil
		}
		out, err := info.JSON()
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version information as JSON")
}
