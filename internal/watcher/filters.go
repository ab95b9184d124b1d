package watcher

import (
	"path/filepath"
	"strings"
)

// AssetFilter passes stylesheet and script files.
func AssetFilter(path string) bool {
	switch filepath.Ext(path) {
	case ".css", ".js":
		return true
	default:
		return false
	}
}

// TemplateFilter passes page template files bearing the configured
// extension.
func TemplateFilter(ext string) FileFilter {
	return func(path string) bool {
		return filepath.Ext(path) == ext
	}
}

// WatchedFilter passes everything the apps tree reacts to: templates plus
// their sibling assets.
func WatchedFilter(templateExt string) FileFilter {
	templates := TemplateFilter(templateExt)
	return func(path string) bool {
		return AssetFilter(path) || templates(path)
	}
}

// NoHiddenFilter rejects hidden files. Hidden directories never join the
// watch set, so checking the base name suffices and keeps watch roots that
// live under a dot-directory working.
func NoHiddenFilter(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), ".")
}

// NoNodeModulesFilter rejects anything under node_modules.
func NoNodeModulesFilter(path string) bool {
	return filepath.Base(path) != "node_modules" && !strings.Contains(filepath.ToSlash(path), "/node_modules/")
}

// NoBackupFilter rejects editor backup and swap artifacts.
func NoBackupFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasSuffix(base, ".bak") &&
		!strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp")
}
