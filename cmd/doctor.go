package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/vellum/internal/config"
	"github.com/conneroisu/vellum/internal/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the project layout and configuration",
	Long: `Check the project for problems the preview server would otherwise surface
one request at a time:

- apps root exists and is scannable
- the configured base template is registered
- every extends reference resolves without cycles
- asset files that no template's link set references
- the configured server port is free

Examples:
  vellum doctor                 # Human-readable report
  vellum doctor --format json   # JSON for tooling`,
	RunE: runDoctor,
}

var doctorFormat string

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().VarP(newFormatValue(&doctorFormat, "table", "table", "json", "yaml"),
		"format", "f", "Output format (table|json|yaml)")
}

// DiagnosticResult is the outcome of one doctor check.
type DiagnosticResult struct {
	Name       string                 `json:"name" yaml:"name"`
	Category   string                 `json:"category" yaml:"category"`
	Status     string                 `json:"status" yaml:"status"` // "ok", "warning", "error", "info"
	Message    string                 `json:"message" yaml:"message"`
	Suggestion string                 `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// DoctorReport is the complete diagnostic report.
type DoctorReport struct {
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
	AppsRoot  string             `json:"apps_root" yaml:"apps_root"`
	Results   []DiagnosticResult `json:"results" yaml:"results"`
	Summary   ReportSummary      `json:"summary" yaml:"summary"`
}

// ReportSummary counts results by status.
type ReportSummary struct {
	Total    int `json:"total" yaml:"total"`
	OK       int `json:"ok" yaml:"ok"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Errors   int `json:"errors" yaml:"errors"`
	Info     int `json:"info" yaml:"info"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	report := diagnose(ctx, cfg)

	switch strings.ToLower(doctorFormat) {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		if err := encoder.Encode(report); err != nil {
			encoder.Close()
			return err
		}
		if err := encoder.Close(); err != nil {
			return err
		}
	case "table":
		for _, result := range report.Results {
			displayResult(result)
		}
		fmt.Printf("\n%d checks: %d ok, %d warnings, %d errors\n",
			report.Summary.Total, report.Summary.OK, report.Summary.Warnings, report.Summary.Errors)
	default:
		return fmt.Errorf("unsupported format: %s (want table, json, or yaml)", doctorFormat)
	}

	if report.Summary.Errors > 0 {
		return fmt.Errorf("doctor found %d problems", report.Summary.Errors)
	}
	return nil
}

// diagnose runs every check that the loaded configuration permits. A broken
// apps root stops the template checks but not the network check.
func diagnose(ctx context.Context, cfg *config.Config) *DoctorReport {
	report := &DoctorReport{
		Timestamp: time.Now(),
		AppsRoot:  cfg.Apps.Root,
		Results:   []DiagnosticResult{},
	}

	rootResult := checkAppsRoot(cfg)
	report.Results = append(report.Results, rootResult)

	if rootResult.Status != "error" {
		proj, err := wireProject(ctx, cfg)
		if err != nil {
			report.Results = append(report.Results, DiagnosticResult{
				Name:       "Template Scan",
				Category:   "project",
				Status:     "error",
				Message:    err.Error(),
				Suggestion: "fix the reported file or directory and re-run",
			})
		} else {
			report.Results = append(report.Results,
				checkTemplates(proj),
				checkBaseTemplate(proj),
				checkLineage(proj),
				checkOrphanedAssets(ctx, proj),
			)
		}
	}

	report.Results = append(report.Results, checkPortAvailability(cfg))

	for _, result := range report.Results {
		report.Summary.Total++
		switch result.Status {
		case "ok":
			report.Summary.OK++
		case "warning":
			report.Summary.Warnings++
		case "error":
			report.Summary.Errors++
		case "info":
			report.Summary.Info++
		}
	}
	return report
}

func checkAppsRoot(cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Apps Root",
		Category: "project",
		Status:   "ok",
		Message:  fmt.Sprintf("apps root %s is readable", cfg.Apps.Root),
	}

	stat, err := os.Stat(cfg.Apps.Root)
	switch {
	case os.IsNotExist(err):
		result.Status = "error"
		result.Message = fmt.Sprintf("apps root %s does not exist", cfg.Apps.Root)
		result.Suggestion = "run from the project root, or set apps.root in .vellum.yml or via --apps"
	case err != nil:
		result.Status = "error"
		result.Message = fmt.Sprintf("apps root %s: %v", cfg.Apps.Root, err)
	case !stat.IsDir():
		result.Status = "error"
		result.Message = fmt.Sprintf("apps root %s is not a directory", cfg.Apps.Root)
	}
	return result
}

func checkTemplates(proj *project) DiagnosticResult {
	apps := proj.registry.Apps()
	count := proj.registry.Count()

	result := DiagnosticResult{
		Name:     "Templates",
		Category: "project",
		Status:   "ok",
		Message:  fmt.Sprintf("%d templates across %d apps", count, len(apps)),
		Details: map[string]interface{}{
			"apps":      apps,
			"templates": count,
		},
	}
	if count == 0 {
		result.Status = "warning"
		result.Message = fmt.Sprintf("no templates found under %s", proj.cfg.Apps.Root)
		result.Suggestion = fmt.Sprintf("add <app>/%s/<name>%s files under the apps root",
			proj.cfg.Apps.TemplatesDir, proj.cfg.Apps.TemplateExt)
	}
	return result
}

func checkBaseTemplate(proj *project) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Base Template",
		Category: "project",
	}

	base := proj.cfg.Apps.Base
	if base == "" {
		result.Status = "info"
		result.Message = "no site-wide base template configured"
		result.Suggestion = "set apps.base (e.g. \"base/site.html\") to have stray inheritance roots flagged"
		return result
	}

	if _, ok := proj.registry.Lookup(base); !ok {
		result.Status = "error"
		result.Message = fmt.Sprintf("configured base template %q is not registered", base)
		result.Suggestion = "check apps.base against the files on disk"
		return result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("base template %q is registered", base)
	return result
}

// checkLineage walks every template's inheritance chain and collects the
// references that do not resolve.
func checkLineage(proj *project) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Inheritance",
		Category: "project",
		Status:   "ok",
	}

	var broken []string
	chains := 0
	for _, app := range proj.registry.Apps() {
		for _, t := range proj.registry.TemplatesFor(app) {
			if _, err := proj.walker.Chain(t.Qualified()); err != nil {
				broken = append(broken, fmt.Sprintf("%s: %v", t.Qualified(), err))
				continue
			}
			chains++
		}
	}

	if len(broken) > 0 {
		result.Status = "error"
		result.Message = fmt.Sprintf("%d templates have unresolvable chains", len(broken))
		result.Suggestion = "fix the extends pragma of the listed templates"
		result.Details = map[string]interface{}{"broken": broken}
		return result
	}

	result.Message = fmt.Sprintf("all %d inheritance chains resolve", chains)
	return result
}

// checkOrphanedAssets reports asset files no template's link set references.
// An orphan is usually a stylesheet or script whose name drifted from its
// template's base name.
func checkOrphanedAssets(ctx context.Context, proj *project) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Assets",
		Category: "project",
		Status:   "ok",
	}

	referenced := make(map[string]bool)
	for _, app := range proj.registry.Apps() {
		for _, t := range proj.registry.TemplatesFor(app) {
			set, err := proj.builder.Build(ctx, t.Qualified())
			if err != nil {
				// Lineage problems are reported by their own check.
				continue
			}
			for _, path := range set.Paths() {
				referenced[path] = true
			}
		}
	}

	var orphans []string
	total := 0
	for _, app := range proj.registry.Apps() {
		for _, kind := range types.Kinds {
			dir := filepath.Join(proj.cfg.Apps.Root, app, assetDir(proj.cfg, kind))
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), kind.Ext()) {
					continue
				}
				total++
				path := filepath.Join(dir, entry.Name())
				if !referenced[path] {
					orphans = append(orphans, path)
				}
			}
		}
	}
	sort.Strings(orphans)

	if len(orphans) > 0 {
		result.Status = "warning"
		result.Message = fmt.Sprintf("%d of %d asset files are referenced by no template", len(orphans), total)
		result.Suggestion = "rename each file to its template's base name, or delete it"
		result.Details = map[string]interface{}{"orphans": orphans}
		return result
	}

	result.Message = fmt.Sprintf("all %d asset files are referenced", total)
	return result
}

// assetDir returns the configured per-app subdirectory for a kind.
func assetDir(cfg *config.Config, kind types.AssetKind) string {
	if kind == types.AssetCSS {
		return cfg.Assets.StylesDir
	}
	return cfg.Assets.ScriptsDir
}

func checkPortAvailability(cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Port",
		Category: "network",
		Status:   "ok",
		Message:  fmt.Sprintf("port %d is available", cfg.Server.Port),
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("port %d on %s is in use", cfg.Server.Port, cfg.Server.Host)
		result.Suggestion = "stop the other process or pick another port with --port"
		return result
	}
	listener.Close()
	return result
}

func displayResult(result DiagnosticResult) {
	var icon string
	switch result.Status {
	case "ok":
		icon = "✅"
	case "warning":
		icon = "⚠️"
	case "error":
		icon = "❌"
	case "info":
		icon = "ℹ️"
	default:
		icon = "•"
	}

	fmt.Printf("%s [%s] %s: %s\n", icon, strings.ToUpper(result.Category), result.Name, result.Message)
	if result.Suggestion != "" {
		fmt.Printf("   💡 %s\n", result.Suggestion)
	}
}
