// Package scanner discovers templates under the apps root.
//
// The scanner walks `<root>/<app>/<templatesDir>/` for template files,
// reads the head of each file for an extends pragma, and registers the
// resulting metadata with the template registry. It supports doublestar
// exclude patterns, single-file rescans driven by the file watcher, and
// removal of templates whose files disappear.
package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/vellum/internal/config"
	"github.com/conneroisu/vellum/internal/logging"
	"github.com/conneroisu/vellum/internal/registry"
	"github.com/conneroisu/vellum/internal/types"
)

// TemplateScanner discovers templates and keeps the registry current.
type TemplateScanner struct {
	registry *registry.TemplateRegistry
	cfg      config.AppsConfig
	logger   logging.Logger

	// headPool recycles the fixed-size buffers used to read template heads.
	headPool sync.Pool
}

// NewTemplateScanner creates a scanner bound to a registry.
func NewTemplateScanner(reg *registry.TemplateRegistry, cfg config.AppsConfig, logger logging.Logger) *TemplateScanner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TemplateScanner{
		registry: reg,
		cfg:      cfg,
		logger:   logger.WithComponent("scanner"),
		headPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, pragmaWindow)
				return &buf
			},
		},
	}
}

// Registry returns the registry this scanner populates.
func (s *TemplateScanner) Registry() *registry.TemplateRegistry {
	return s.registry
}

// ScanAll discovers every app under the root and scans its templates.
func (s *TemplateScanner) ScanAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		return fmt.Errorf("reading apps root %s: %w", s.cfg.Root, err)
	}

	var apps, templates int
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		n, err := s.ScanApp(ctx, entry.Name())
		if err != nil {
			return err
		}
		if n >= 0 {
			apps++
			templates += n
		}
	}

	s.logger.Info(ctx, "scan complete", "apps", apps, "templates", templates)
	return nil
}

// ScanApp scans one app's templates directory. Returns the number of
// templates registered, or -1 if the directory does not qualify as an app
// (no templates subdirectory).
func (s *TemplateScanner) ScanApp(ctx context.Context, app string) (int, error) {
	dir := filepath.Join(s.cfg.Root, app, s.cfg.TemplatesDir)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		// A directory under the root without a templates subdir is not an app.
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading templates of %s: %w", app, err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), s.cfg.TemplateExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if s.excluded(app, entry.Name()) {
			s.logger.Debug(ctx, "template excluded", "path", path)
			continue
		}
		if err := s.ScanFile(ctx, path); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ScanFile reads one template file and registers (or re-registers) it.
// The path must lie under `<root>/<app>/<templatesDir>/`.
func (s *TemplateScanner) ScanFile(ctx context.Context, path string) error {
	app, name, err := s.Identify(path)
	if err != nil {
		return err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat template %s: %w", path, err)
	}

	extends, err := s.readExtends(path)
	if err != nil {
		return err
	}

	info := &types.TemplateInfo{
		App:      app,
		Name:     name,
		FilePath: path,
		Extends:  extends,
		LastMod:  stat.ModTime(),
	}
	s.registry.Register(info)
	s.logger.Debug(ctx, "template registered",
		"template", info.Qualified(),
		"extends", extends,
	)
	return nil
}

// RemoveFile unregisters the template backing a deleted file. Unknown paths
// are ignored.
func (s *TemplateScanner) RemoveFile(ctx context.Context, path string) {
	app, name, err := s.Identify(path)
	if err != nil {
		return
	}
	qualified := app + "/" + name
	s.registry.Remove(qualified)
	s.logger.Debug(ctx, "template removed", "template", qualified)
}

// Identify maps an absolute or root-relative template path to its (app, name)
// pair. It errors when the path does not follow the apps layout.
func (s *TemplateScanner) Identify(path string) (app, name string, err error) {
	rel, relErr := filepath.Rel(s.cfg.Root, path)
	if relErr != nil || strings.HasPrefix(rel, "..") {
		return "", "", fmt.Errorf("template path %s is outside the apps root", path)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || parts[1] != s.cfg.TemplatesDir {
		return "", "", fmt.Errorf("template path %s does not match <app>/%s/<name>", path, s.cfg.TemplatesDir)
	}
	if !strings.HasSuffix(parts[2], s.cfg.TemplateExt) {
		return "", "", fmt.Errorf("template path %s does not carry extension %s", path, s.cfg.TemplateExt)
	}
	return parts[0], parts[2], nil
}

// excluded reports whether the app-relative template path matches any
// configured exclude pattern.
func (s *TemplateScanner) excluded(app, name string) bool {
	rel := app + "/" + s.cfg.TemplatesDir + "/" + name
	for _, pattern := range s.cfg.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		// Patterns may also target the bare filename.
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// readExtends reads the head of a template file and extracts the extends
// pragma, verifying that the parent reference is well formed.
func (s *TemplateScanner) readExtends(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open template %s: %w", path, err)
	}
	defer f.Close()

	bufp := s.headPool.Get().(*[]byte)
	defer s.headPool.Put(bufp)

	// Files shorter than the window are fine; only hard IO errors surface.
	n, err := io.ReadFull(f, *bufp)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read template head %s: %w", path, err)
	}

	parent, ok := ParseExtends((*bufp)[:n])
	if !ok {
		return "", nil
	}

	if _, _, err := types.SplitQualified(parent); err != nil {
		return "", fmt.Errorf("template %s: malformed extends reference %q", path, parent)
	}
	return parent, nil
}
