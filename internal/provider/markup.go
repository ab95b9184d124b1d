package provider

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/vellum/internal/types"
)

// Links renders a resolved link set as HTML head markup. It satisfies
// templ.Component, so templ hosts splice it into layouts directly; plain
// html/template hosts call HTML and mark the result safe.
type Links struct {
	set       types.LinkSet
	prefix    string
	payloadID string
	payload   []byte
}

var _ templ.Component = Links{}

// NewLinks wraps a link set for emission under the given static URL prefix
// (no trailing slash, e.g. "/static").
func NewLinks(set types.LinkSet, prefix string) Links {
	return Links{set: set, prefix: strings.TrimSuffix(prefix, "/")}
}

// WithContext attaches a finalized context payload. The identifier is added
// to every emitted script tag; the payload bytes, when non-nil, are embedded
// as an inline JSON data island so client script can read the context
// without a round trip. payload must be registry-produced JSON (its
// HTML-sensitive characters are already unicode-escaped).
func (l Links) WithContext(id string, payload []byte) Links {
	l.payloadID = id
	l.payload = payload
	return l
}

// Set returns the underlying link set.
func (l Links) Set() types.LinkSet {
	return l.set
}

// PayloadID returns the attached context payload identifier, if any.
func (l Links) PayloadID() string {
	return l.payloadID
}

// CSS returns one stylesheet link tag per CSS entry, ancestor-first.
func (l Links) CSS() string {
	var sb strings.Builder
	for _, entry := range l.set.OfKind(types.AssetCSS) {
		sb.WriteString(`<link rel="stylesheet" href="`)
		sb.WriteString(templ.EscapeString(l.href(entry)))
		sb.WriteString("\" />\n")
	}
	return sb.String()
}

// Scripts returns the context bootstrap tag (when a payload is attached)
// followed by one script tag per JS entry, ancestor-first. Every script tag
// carries the payload identifier attribute; nonce, when non-empty, is added
// to all emitted tags.
func (l Links) Scripts(nonce string) string {
	var sb strings.Builder

	if l.payloadID != "" {
		sb.WriteString(`<script type="application/json" data-vellum-context="`)
		sb.WriteString(templ.EscapeString(l.payloadID))
		sb.WriteString(`"`)
		writeNonce(&sb, nonce)
		sb.WriteString(">")
		sb.Write(l.payload)
		sb.WriteString("</script>\n")
	}

	for _, entry := range l.set.OfKind(types.AssetJS) {
		sb.WriteString(`<script src="`)
		sb.WriteString(templ.EscapeString(l.href(entry)))
		sb.WriteString(`"`)
		if l.payloadID != "" {
			sb.WriteString(` data-vellum-context="`)
			sb.WriteString(templ.EscapeString(l.payloadID))
			sb.WriteString(`"`)
		}
		writeNonce(&sb, nonce)
		sb.WriteString(" defer></script>\n")
	}
	return sb.String()
}

// HTML returns the full head markup: stylesheets, then scripts.
func (l Links) HTML(nonce string) string {
	return l.CSS() + l.Scripts(nonce)
}

// Render implements templ.Component. The nonce, when the surrounding templ
// render carries one, is propagated to every emitted tag.
func (l Links) Render(ctx context.Context, w io.Writer) error {
	_, err := io.WriteString(w, l.HTML(templ.GetNonce(ctx)))
	return err
}

func (l Links) href(entry types.LinkEntry) string {
	return l.prefix + "/" + entry.Ref.URLPath() + "?v=" + entry.Token
}

func writeNonce(sb *strings.Builder, nonce string) {
	if nonce == "" {
		return
	}
	sb.WriteString(` nonce="`)
	sb.WriteString(templ.EscapeString(nonce))
	sb.WriteString(`"`)
}

// ContextAttributes returns the payload identifier as a templ attribute map
// for hosts that render their own script tags.
func ContextAttributes(id string) templ.Attributes {
	return templ.Attributes{"data-vellum-context": id}
}

// AttributeFor returns the payload identifier as a ready-to-splice attribute
// string (`data-vellum-context="<id>"`) for hosts that build script tags by
// hand. Empty id yields an empty string.
func AttributeFor(id string) string {
	if id == "" {
		return ""
	}
	return `data-vellum-context="` + templ.EscapeString(id) + `"`
}
