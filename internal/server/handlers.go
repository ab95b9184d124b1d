package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/vellum/internal/errors"
	"github.com/conneroisu/vellum/internal/jscontext"
	"github.com/conneroisu/vellum/internal/provider"
	"github.com/conneroisu/vellum/internal/types"
	"github.com/conneroisu/vellum/internal/version"
)

const pageStyle = `
body { font-family: system-ui, sans-serif; margin: 0 auto; max-width: 960px; padding: 24px; color: #222; }
h1 { border-bottom: 2px solid #36a; padding-bottom: 8px; }
a { color: #26c; text-decoration: none; }
a:hover { text-decoration: underline; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; font-size: 14px; }
code, pre { background: #f6f6f6; border-radius: 4px; }
pre { padding: 12px; overflow-x: auto; }
ol.chain li { margin: 4px 0; }
.path { color: #888; font-size: 12px; margin-left: 8px; }
.status { position: fixed; top: 16px; right: 16px; padding: 4px 12px; border-radius: 4px; font-size: 12px; color: #fff; background: #999; }
.status.connected { background: #28a745; }
.status.disconnected { background: #dc3545; }
.empty { color: #666; }
footer { margin-top: 32px; color: #888; font-size: 12px; }
`

// reloadScript keeps preview pages in sync with the filesystem: it connects
// to /ws and reloads on the full_reload broadcast the watcher pipeline emits.
const reloadScript = `(function () {
	var status = document.getElementById('status');
	function set(state) {
		if (status) { status.textContent = state; status.className = 'status ' + state; }
	}
	function connect() {
		var proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
		var ws = new WebSocket(proto + '//' + location.host + '/ws');
		ws.onopen = function () { set('connected'); };
		ws.onclose = function () { set('disconnected'); setTimeout(connect, 2000); };
		ws.onmessage = function (event) {
			var message = JSON.parse(event.data);
			if (message.type === 'full_reload') { location.reload(); }
		};
	}
	connect();
})();`

// contextDumpScript exercises the client runtime on the preview page: it
// resolves the payload (island first, endpoint as fallback) and pretty-prints
// the values. %q receives the payload identifier.
const contextDumpScript = `vellum.context(%q).then(function (values) {
	document.getElementById('context-dump').textContent = JSON.stringify(values, null, 2);
}).catch(function (err) {
	document.getElementById('context-dump').textContent = String(err);
});`

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	nonce := templ.GetNonce(r.Context())

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\" />\n")
	sb.WriteString("<title>vellum</title>\n")
	writeStyle(&sb, nonce)
	sb.WriteString("</head>\n<body>\n")
	sb.WriteString("<h1>vellum</h1>\n")
	sb.WriteString(`<div id="status" class="status">connecting</div>` + "\n")

	apps := s.registry.Apps()
	if len(apps) == 0 {
		sb.WriteString(`<p class="empty">No templates discovered under `)
		sb.WriteString(templ.EscapeString(s.config.Apps.Root))
		sb.WriteString(". Check the apps root and naming conventions.</p>\n")
	}
	for _, app := range apps {
		sb.WriteString("<h2>" + templ.EscapeString(app) + "</h2>\n<ul>\n")
		for _, info := range s.registry.TemplatesFor(app) {
			qualified := info.Qualified()
			sb.WriteString(`<li><a href="` + templ.EscapeString(previewPath(qualified)) + `">`)
			sb.WriteString(templ.EscapeString(info.Name))
			if info.Extends != "" {
				sb.WriteString(`</a> <span class="path">extends ` + templ.EscapeString(info.Extends) + "</span></li>\n")
			} else {
				sb.WriteString("</a></li>\n")
			}
		}
		sb.WriteString("</ul>\n")
	}

	sb.WriteString("<footer>vellum " + templ.EscapeString(version.Short()) + "</footer>\n")
	s.writeReloadScript(&sb, nonce)
	sb.WriteString("</body>\n</html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.WriteString(w, sb.String()); err != nil {
		s.logger.Warn(r.Context(), err, "writing index response")
	}
}

func (s *PreviewServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	qualified := strings.TrimPrefix(r.URL.Path, "/preview/")
	if strings.Contains(qualified, "..") {
		http.Error(w, "invalid template reference", http.StatusBadRequest)
		return
	}
	app, _, err := types.SplitQualified(qualified)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, ok := s.registry.Lookup(qualified)
	if !ok {
		http.NotFound(w, r)
		return
	}

	// The demo render context mixes tagged and untagged entries so the
	// preview shows exactly which half crosses to the client.
	requestID := RequestIDFrom(r.Context())
	renderContext := map[string]interface{}{
		"app":          jscontext.Tag(app),
		"template":     jscontext.Tag(qualified),
		"request_id":   jscontext.Tag(requestID),
		"generated_at": jscontext.Tag(time.Now().UTC().Format(time.RFC3339)),
		"served_by":    version.Short(),
	}

	links, err := s.provider.Links(r.Context(), requestID, qualified, renderContext)
	if err != nil {
		s.renderError(w, r, qualified, err)
		return
	}

	chain, err := s.walker.Chain(qualified)
	if err != nil {
		// Links resolved the same chain a moment ago, so this only races
		// with a concurrent registry change.
		s.renderError(w, r, qualified, err)
		return
	}

	s.renderPreviewPage(w, r, info, chain, links)
}

func (s *PreviewServer) renderPreviewPage(w http.ResponseWriter, r *http.Request, info *types.TemplateInfo, chain []*types.TemplateInfo, links provider.Links) {
	nonce := templ.GetNonce(r.Context())

	var head bytes.Buffer
	if err := links.Render(r.Context(), &head); err != nil {
		http.Error(w, "rendering link markup failed", http.StatusInternalServerError)
		return
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\" />\n")
	sb.WriteString("<title>" + templ.EscapeString(info.Qualified()) + " - vellum</title>\n")
	sb.Write(head.Bytes())
	writeStyle(&sb, nonce)
	sb.WriteString("</head>\n<body>\n")
	sb.WriteString(`<nav><a href="/">all templates</a></nav>` + "\n")
	sb.WriteString("<h1>" + templ.EscapeString(info.Qualified()) + "</h1>\n")
	sb.WriteString(`<div id="status" class="status">connecting</div>` + "\n")

	sb.WriteString("<h2>Inheritance</h2>\n<ol class=\"chain\">\n")
	for _, member := range chain {
		sb.WriteString("<li><code>" + templ.EscapeString(member.Qualified()) + "</code>")
		sb.WriteString(`<span class="path">` + templ.EscapeString(member.FilePath) + "</span></li>\n")
	}
	sb.WriteString("</ol>\n")

	set := links.Set()
	sb.WriteString("<h2>Assets</h2>\n")
	if len(set) == 0 {
		sb.WriteString(`<p class="empty">No assets discovered along this chain.</p>` + "\n")
	} else {
		sb.WriteString("<table>\n<tr><th>Kind</th><th>URL</th></tr>\n")
		for _, entry := range set {
			href := s.assetHref(entry)
			sb.WriteString("<tr><td>" + entry.Ref.Kind.String() + "</td>")
			sb.WriteString(`<td><a href="` + templ.EscapeString(href) + `">` + templ.EscapeString(href) + "</a></td></tr>\n")
		}
		sb.WriteString("</table>\n")
	}

	sb.WriteString("<h2>Context payload</h2>\n")
	if links.PayloadID() == "" {
		sb.WriteString(`<p class="empty">This render tagged no values for the client.</p>` + "\n")
	} else {
		sb.WriteString(`<pre id="context-dump">resolving ` + templ.EscapeString(links.PayloadID()) + "...</pre>\n")
	}

	sb.WriteString(`<script src="/vellum.js"></script>` + "\n")
	if links.PayloadID() != "" {
		openTag(&sb, "script", nonce)
		sb.WriteString(fmt.Sprintf(contextDumpScript, links.PayloadID()))
		sb.WriteString("</script>\n")
	}
	s.writeReloadScript(&sb, nonce)
	sb.WriteString("</body>\n</html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := io.WriteString(w, sb.String()); err != nil {
		s.logger.Warn(r.Context(), err, "writing preview response", "template", info.Qualified())
	}
}

func (s *PreviewServer) renderError(w http.ResponseWriter, r *http.Request, qualified string, err error) {
	if errors.IsTemplateNotFound(err) {
		http.NotFound(w, r)
		return
	}
	s.logger.Error(r.Context(), err, "preview render failed", "template", qualified)
	http.Error(w, fmt.Sprintf("rendering %s failed: %v", qualified, err), http.StatusInternalServerError)
}

func (s *PreviewServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSuffix(s.config.Assets.StaticPrefix, "/") + "/"
	rel := strings.TrimPrefix(r.URL.Path, prefix)
	if rel == r.URL.Path || rel == "" {
		http.NotFound(w, r)
		return
	}

	// Asset URLs have the fixed shape app/subdir/file; anything else is not
	// an asset this server publishes.
	parts := strings.Split(rel, "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsRune(part, '\\') {
			http.Error(w, "invalid asset path", http.StatusBadRequest)
			return
		}
	}
	switch parts[1] {
	case s.config.Assets.StylesDir, s.config.Assets.ScriptsDir:
	default:
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.config.Apps.Root, filepath.Join(parts...))
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		s.logger.Warn(r.Context(), err, "opening asset", "path", path)
		http.Error(w, "opening asset failed", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	switch filepath.Ext(path) {
	case types.AssetCSS.Ext():
		w.Header().Set("Content-Type", types.AssetCSS.ContentType())
	case types.AssetJS.Ext():
		w.Header().Set("Content-Type", types.AssetJS.ContentType())
	}

	// Tokened URLs change whenever content changes, so responses for them
	// can be cached forever. Untokened requests must revalidate.
	if r.URL.Query().Get("v") != "" {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}

	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
}

func (s *PreviewServer) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/context/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	payload, err := s.contexts.Retrieve(id)
	if err != nil {
		switch {
		case errors.IsPayloadExpired(err):
			// Normal after the owning response completes; the inline island
			// is the intended source by then.
			http.Error(w, "context payload expired", http.StatusGone)
		case errors.IsPayloadUnknown(err):
			http.NotFound(w, r)
		default:
			s.logger.Error(r.Context(), err, "context retrieval failed", "payload_id", id)
			http.Error(w, "context retrieval failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(payload.JSON()); err != nil {
		s.logger.Warn(r.Context(), err, "writing context payload", "payload_id", id)
	}
}

func (s *PreviewServer) handleRuntimeJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", types.AssetJS.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := io.WriteString(w, provider.RuntimeJS); err != nil {
		s.logger.Warn(r.Context(), err, "writing runtime script")
	}
}

type templateSummary struct {
	Qualified string    `json:"qualified"`
	App       string    `json:"app"`
	Name      string    `json:"name"`
	FilePath  string    `json:"file_path"`
	Extends   string    `json:"extends,omitempty"`
	LastMod   time.Time `json:"last_mod"`
}

func (s *PreviewServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	all := s.registry.GetAll()
	summaries := make([]templateSummary, 0, len(all))
	for qualified, info := range all {
		summaries = append(summaries, templateSummary{
			Qualified: qualified,
			App:       info.App,
			Name:      info.Name,
			FilePath:  info.FilePath,
			Extends:   info.Extends,
			LastMod:   info.LastMod,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Qualified < summaries[j].Qualified })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"templates": summaries,
		"count":     len(summaries),
	}); err != nil {
		s.logger.Warn(r.Context(), err, "writing template list")
	}
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.contexts.Stats()
	health := map[string]interface{}{
		"status":    "ok",
		"version":   version.Short(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"templates": s.registry.Count(),
		"payloads": map[string]int{
			"live":       stats.LivePayloads,
			"scopes":     stats.OpenScopes,
			"tombstones": stats.Tombstones,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "writing health response")
	}
}

func (s *PreviewServer) assetHref(entry types.LinkEntry) string {
	return strings.TrimSuffix(s.config.Assets.StaticPrefix, "/") + "/" + entry.Ref.URLPath() + "?v=" + entry.Token
}

func (s *PreviewServer) writeReloadScript(sb *strings.Builder, nonce string) {
	if !s.config.Development.HotReload {
		return
	}
	openTag(sb, "script", nonce)
	sb.WriteString(reloadScript)
	sb.WriteString("</script>\n")
}

func previewPath(qualified string) string {
	u := url.URL{Path: "/preview/" + qualified}
	return u.EscapedPath()
}

func writeStyle(sb *strings.Builder, nonce string) {
	openTag(sb, "style", nonce)
	sb.WriteString(pageStyle)
	sb.WriteString("</style>\n")
}

func openTag(sb *strings.Builder, tag, nonce string) {
	sb.WriteString("<" + tag)
	if nonce != "" {
		sb.WriteString(` nonce="` + templ.EscapeString(nonce) + `"`)
	}
	sb.WriteString(">")
}
