// Package assets resolves the CSS/JS files belonging to templates and
// computes cache-busting version tokens for them.
//
// Discovery is purely conventional: a template <app>/templates/<base>.html
// owns at most one stylesheet <app>/<stylesDir>/<base>.css and one script
// <app>/<scriptsDir>/<base>.js. Tokens are short BLAKE3 digests over file
// content and mtime, cached behind a stat gate so unchanged files cost one
// stat call per render.
package assets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/vellum/internal/config"
	"github.com/conneroisu/vellum/internal/types"
)

// Locator maps templates to their conventional asset files.
type Locator struct {
	root        string
	templateExt string
	kindDirs    map[types.AssetKind]string
}

// NewLocator builds a locator from the apps and assets configuration.
func NewLocator(apps config.AppsConfig, assets config.AssetsConfig) *Locator {
	return &Locator{
		root:        apps.Root,
		templateExt: apps.TemplateExt,
		kindDirs: map[types.AssetKind]string{
			types.AssetCSS: assets.StylesDir,
			types.AssetJS:  assets.ScriptsDir,
		},
	}
}

// Locate resolves the asset of the given kind for a template. The second
// return is false when the template has no such asset; absence is an
// expected outcome, not an error. Resolution never leaves the template's
// own app directory.
func (l *Locator) Locate(t *types.TemplateInfo, kind types.AssetKind) (types.AssetRef, bool) {
	base := strings.TrimSuffix(t.Name, l.templateExt)
	if base == "" || base != filepath.Base(base) {
		return types.AssetRef{}, false
	}

	subdir := l.kindDirs[kind]
	filename := base + kind.Ext()
	abs := filepath.Join(l.root, t.App, subdir, filename)

	stat, err := os.Stat(abs)
	if err != nil || stat.IsDir() {
		return types.AssetRef{}, false
	}

	return types.AssetRef{
		Kind:         kind,
		AbsolutePath: abs,
		App:          t.App,
		Template:     t.Qualified(),
		RelPath:      subdir + "/" + filename,
	}, true
}

// Resolve re-resolves a previously located asset by absolute path,
// confirming it still exists. Used for the single retry after a
// discovery/hash race.
func (l *Locator) Resolve(ref types.AssetRef) (types.AssetRef, bool) {
	stat, err := os.Stat(ref.AbsolutePath)
	if err != nil || stat.IsDir() {
		return types.AssetRef{}, false
	}
	return ref, true
}
