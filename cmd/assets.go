package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/conneroisu/vellum/internal/types"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

var assetsCmd = &cobra.Command{
	Use:   "assets [app[/template]]",
	Short: "Show the resolved asset link sets",
	Long: `Show the CSS and JS links each template emits, resolved over its full
inheritance chain: ancestor assets first, stylesheets before scripts, each
carrying its current cache-busting token.

Examples:
  vellum assets                      # Every template in the project
  vellum assets shop                 # Every template of the shop app
  vellum assets shop/index.html      # One template
  vellum assets -f json shop         # JSON for tooling
  vellum assets -f yaml              # YAML`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAssets,
}

var assetsFormat string

func init() {
	rootCmd.AddCommand(assetsCmd)

	assetsCmd.Flags().VarP(newFormatValue(&assetsFormat, "table", "table", "json", "yaml"),
		"format", "f", "Output format (table|json|yaml)")
}

// assetReport is the per-template record emitted by `vellum assets`.
type assetReport struct {
	Template string      `json:"template" yaml:"template"`
	Chain    []string    `json:"chain" yaml:"chain"`
	Links    []assetLink `json:"links" yaml:"links"`
}

type assetLink struct {
	Kind  string `json:"kind" yaml:"kind"`
	App   string `json:"app" yaml:"app"`
	URL   string `json:"url" yaml:"url"`
	Path  string `json:"path" yaml:"path"`
	Token string `json:"token" yaml:"token"`
}

func runAssets(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	proj, err := loadProject(ctx)
	if err != nil {
		return err
	}

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	return reportAssets(ctx, proj, arg, assetsFormat, os.Stdout)
}

func reportAssets(ctx context.Context, proj *project, arg, format string, out io.Writer) error {
	targets, err := proj.targets(arg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintf(out, "No templates found under %s.\n", proj.cfg.Apps.Root)
		return nil
	}

	reports := make([]assetReport, 0, len(targets))
	prefix := strings.TrimSuffix(proj.cfg.Assets.StaticPrefix, "/")
	for _, qualified := range targets {
		set, err := proj.builder.Build(ctx, qualified)
		if err != nil {
			return fmt.Errorf("building links for %s: %w", qualified, err)
		}
		chain, err := proj.walker.Chain(qualified)
		if err != nil {
			return err
		}

		report := assetReport{Template: qualified, Chain: make([]string, len(chain))}
		for i, t := range chain {
			report.Chain[i] = t.Qualified()
		}
		for _, entry := range set {
			report.Links = append(report.Links, assetLink{
				Kind:  entry.Ref.Kind.String(),
				App:   entry.Ref.App,
				URL:   prefix + "/" + entry.Ref.URLPath() + "?v=" + entry.Token,
				Path:  entry.Ref.AbsolutePath,
				Token: entry.Token,
			})
		}
		reports = append(reports, report)
	}

	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(reports)
	case "table":
		return assetsTable(out, reports)
	default:
		return fmt.Errorf("unsupported format: %s (want table, json, or yaml)", format)
	}
}

func assetsTable(out io.Writer, reports []assetReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	title := cases.Title(language.English)
	currentApp := ""
	links := 0

	for _, report := range reports {
		app, _, err := types.SplitQualified(report.Template)
		if err != nil {
			return err
		}
		if app != currentApp {
			if currentApp != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s\n", title.String(app))
			fmt.Fprintln(w, "TEMPLATE\tKIND\tURL")
			currentApp = app
		}

		if len(report.Links) == 0 {
			fmt.Fprintf(w, "%s\t\t(no assets)\n", report.Template)
			continue
		}
		for _, link := range report.Links {
			fmt.Fprintf(w, "%s\t%s\t%s\n", report.Template, link.Kind, link.URL)
			links++
		}
	}

	fmt.Fprintf(w, "\nTotal: %d templates, %d links\n", len(reports), links)
	return nil
}
