package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/conneroisu/vellum/internal/version"
	"github.com/spf13/cobra"
)

var (
	versionFormat string
	versionShort  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and build information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().VarP(newFormatValue(&versionFormat, "text", "text", "json"),
		"format", "f", "Output format (text|json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print the one-line version only")
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionShort {
		fmt.Println(version.Short())
		return nil
	}

	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(version.Get())
	case "text":
		fmt.Println(version.Detailed())
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (want text or json)", versionFormat)
	}
}
