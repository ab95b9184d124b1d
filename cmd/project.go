package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/vellum/internal/assets"
	"github.com/conneroisu/vellum/internal/config"
	"github.com/conneroisu/vellum/internal/lineage"
	"github.com/conneroisu/vellum/internal/logging"
	"github.com/conneroisu/vellum/internal/provider"
	"github.com/conneroisu/vellum/internal/registry"
	"github.com/conneroisu/vellum/internal/scanner"
)

// project bundles the scan pipeline shared by the offline commands
// (assets, doctor). The preview server wires the same components itself.
type project struct {
	cfg      *config.Config
	registry *registry.TemplateRegistry
	walker   *lineage.Walker
	locator  *assets.Locator
	builder  *provider.Builder
}

// loadProject loads configuration, scans the apps root, and wires the
// chain walker and link builder over the result. Logs go to stderr so
// command output on stdout stays machine-readable.
func loadProject(ctx context.Context) (*project, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return wireProject(ctx, cfg)
}

func wireProject(ctx context.Context, cfg *config.Config) (*project, error) {
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	reg := registry.NewTemplateRegistry()
	scan := scanner.NewTemplateScanner(reg, cfg.Apps, logger)
	if err := scan.ScanAll(ctx); err != nil {
		return nil, err
	}

	walker := lineage.NewWalker(reg)
	locator := assets.NewLocator(cfg.Apps, cfg.Assets)
	builder := provider.NewBuilder(walker, locator, assets.NewTokenCache(), cfg.Apps.Base, logger, nil)

	return &project{
		cfg:      cfg,
		registry: reg,
		walker:   walker,
		locator:  locator,
		builder:  builder,
	}, nil
}

// targets resolves a command argument to qualified template names, sorted.
// No argument selects every template; "app" selects one app's templates;
// "app/name.html" selects a single template.
func (p *project) targets(arg string) ([]string, error) {
	if arg == "" {
		var out []string
		for _, app := range p.registry.Apps() {
			for _, t := range p.registry.TemplatesFor(app) {
				out = append(out, t.Qualified())
			}
		}
		return out, nil
	}

	if !strings.Contains(arg, "/") {
		templates := p.registry.TemplatesFor(arg)
		if len(templates) == 0 {
			return nil, fmt.Errorf("no templates found for app %q under %s", arg, p.cfg.Apps.Root)
		}
		out := make([]string, len(templates))
		for i, t := range templates {
			out[i] = t.Qualified()
		}
		return out, nil
	}

	if _, ok := p.registry.Lookup(arg); !ok {
		return nil, fmt.Errorf("template %q is not registered (try `vellum assets` to list)", arg)
	}
	return []string{arg}, nil
}
