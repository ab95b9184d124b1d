// Package types provides common type definitions used throughout vellum.
// This package contains shared types to avoid circular dependencies between
// packages.
package types

import (
	"fmt"
	"strings"
	"time"
)

// TemplateInfo contains metadata about a discovered page template, including
// its owning app, its position in the extends hierarchy, and runtime
// information used by the scanner, registry, and link builder.
type TemplateInfo struct {
	// App is the name of the app directory that owns the template
	App string
	// Name is the template file name including extension (e.g. "index.html")
	Name string
	// FilePath is the absolute path to the template file
	FilePath string
	// Extends is the qualified "app/name" reference to the parent template,
	// or "" for a root template
	Extends string
	// LastMod is the file mtime observed at scan time; rescans compare
	// against it to detect edits
	LastMod time.Time
}

// Qualified returns the registry key for the template: "app/name".
func (t *TemplateInfo) Qualified() string {
	return t.App + "/" + t.Name
}

// BaseName returns the template name with its extension stripped, which is
// the base name its assets share by convention.
func (t *TemplateInfo) BaseName() string {
	if i := strings.LastIndex(t.Name, "."); i > 0 {
		return t.Name[:i]
	}
	return t.Name
}

// SplitQualified splits a qualified "app/name" reference into its parts.
// The name itself may contain further slashes (nested template dirs).
func SplitQualified(qualified string) (app, name string, err error) {
	i := strings.Index(qualified, "/")
	if i <= 0 || i == len(qualified)-1 {
		return "", "", fmt.Errorf("malformed template reference %q (want \"app/name\")", qualified)
	}
	return qualified[:i], qualified[i+1:], nil
}

// AssetKind identifies the category of a static asset associated with a
// template. The kind fixes the sibling directory, the file extension, and
// the MIME type used when serving.
type AssetKind int

const (
	AssetCSS AssetKind = iota
	AssetJS
)

// Kinds lists all asset kinds in emission order: stylesheets link before
// scripts so CSS is available by the time scripts run.
var Kinds = []AssetKind{AssetCSS, AssetJS}

// String returns the short lowercase name of the kind.
func (k AssetKind) String() string {
	switch k {
	case AssetCSS:
		return "css"
	case AssetJS:
		return "js"
	default:
		return "unknown"
	}
}

// Subdir returns the app subdirectory searched for assets of this kind.
func (k AssetKind) Subdir() string {
	switch k {
	case AssetCSS:
		return "styles"
	case AssetJS:
		return "scripts"
	default:
		return ""
	}
}

// Ext returns the file extension (with dot) for assets of this kind.
func (k AssetKind) Ext() string {
	switch k {
	case AssetCSS:
		return ".css"
	case AssetJS:
		return ".js"
	default:
		return ""
	}
}

// ContentType returns the MIME type used when serving assets of this kind.
func (k AssetKind) ContentType() string {
	switch k {
	case AssetCSS:
		return "text/css; charset=utf-8"
	case AssetJS:
		return "text/javascript; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// AssetRef identifies one discovered asset file. At most one AssetRef exists
// per (kind, template) pair: the naming convention fixes the expected file,
// so discovery finds exactly one match or none.
type AssetRef struct {
	// Kind is the asset category (CSS or JS)
	Kind AssetKind
	// AbsolutePath is the resolved path on disk
	AbsolutePath string
	// App is the app that owns the asset
	App string
	// Template is the qualified name of the template the asset belongs to
	Template string
	// RelPath is the app-relative path ("styles/index.css") used to build
	// the public URL
	RelPath string
}

// URLPath returns the asset's path below the static URL prefix:
// "app/styles/index.css".
func (r AssetRef) URLPath() string {
	return r.App + "/" + r.RelPath
}

// LinkEntry pairs an asset with the version token current at build time.
type LinkEntry struct {
	Ref   AssetRef
	Token string
}

// LinkSet is the ordered, deduplicated sequence of assets to emit for one
// template's inheritance chain. Entries are ordered ancestor-first within
// each kind, CSS entries before JS entries.
type LinkSet []LinkEntry

// OfKind returns the entries of one kind, preserving order.
func (ls LinkSet) OfKind(kind AssetKind) []LinkEntry {
	var out []LinkEntry
	for _, e := range ls {
		if e.Ref.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Paths returns the absolute paths of all entries, preserving order. Used by
// tests and by the doctor command's orphan check.
func (ls LinkSet) Paths() []string {
	out := make([]string, len(ls))
	for i, e := range ls {
		out[i] = e.Ref.AbsolutePath
	}
	return out
}

// EventType represents the type of template change event.
type EventType string

const (
	EventTypeAdded   EventType = "added"
	EventTypeUpdated EventType = "updated"
	EventTypeRemoved EventType = "removed"
)

// TemplateEvent represents a change in the template registry, used for
// notifications to watchers like the preview server.
type TemplateEvent struct {
	Type EventType
	// Template contains the template information (nil only for removals
	// of templates the registry never held)
	Template *TemplateInfo
	// Timestamp records when the event occurred
	Timestamp time.Time
}
