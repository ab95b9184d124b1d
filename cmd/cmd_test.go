package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/conneroisu/vellum/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeProjectFixture lays out a small project: a base app with assets, a
// shop app whose index has assets and whose cart has none, and a docs app
// with a bare root template.
func writeProjectFixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("base/templates/site.html", "<html><body>site</body></html>\n")
	write("base/styles/site.css", "body { margin: 0; }\n")
	write("base/scripts/site.js", "console.log(\"site\");\n")
	write("shop/templates/index.html", "<!-- vellum: extends=\"base/site.html\" -->\n<p>index</p>\n")
	write("shop/styles/index.css", ".price { color: red; }\n")
	write("shop/scripts/index.js", "console.log(\"index\");\n")
	write("shop/templates/cart.html", "<!-- vellum: extends=\"base/site.html\" -->\n<p>cart</p>\n")
	write("docs/templates/readme.html", "<p>readme</p>\n")

	cfg := config.Default()
	cfg.Apps.Root = root
	cfg.Apps.Base = "base/site.html"
	cfg.Server.Port = 0
	cfg.Logging.Level = "error"
	return cfg
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "assets", "doctor", "version"} {
		assert.True(t, names[want], "command %s not registered", want)
	}
}

func TestAssetsReportTable(t *testing.T) {
	ctx := context.Background()
	proj, err := wireProject(ctx, writeProjectFixture(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reportAssets(ctx, proj, "", "table", &buf))
	out := buf.String()

	// App headings are title-cased, apps in sorted order.
	assert.Contains(t, out, "Base\n")
	assert.Contains(t, out, "Shop")
	assert.Contains(t, out, "Docs")
	assert.Less(t, strings.Index(out, "Base"), strings.Index(out, "Shop"))

	// Ancestor assets precede the leaf's own.
	assert.Less(t,
		strings.Index(out, "base/styles/site.css"),
		strings.Index(out, "shop/styles/index.css"))

	assert.Contains(t, out, "docs/readme.html")
	assert.Contains(t, out, "(no assets)")
	assert.Contains(t, out, "Total: 4 templates")
}

func TestAssetsReportJSON(t *testing.T) {
	ctx := context.Background()
	proj, err := wireProject(ctx, writeProjectFixture(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reportAssets(ctx, proj, "shop/index.html", "json", &buf))

	var reports []assetReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &reports))
	require.Len(t, reports, 1)

	report := reports[0]
	assert.Equal(t, "shop/index.html", report.Template)
	assert.Equal(t, []string{"base/site.html", "shop/index.html"}, report.Chain)

	require.Len(t, report.Links, 4)
	kinds := make([]string, len(report.Links))
	for i, link := range report.Links {
		kinds[i] = link.Kind
	}
	assert.Equal(t, []string{"css", "css", "js", "js"}, kinds)

	tokenPattern := regexp.MustCompile(`^[0-9a-f]{12}$`)
	for _, link := range report.Links {
		assert.Regexp(t, tokenPattern, link.Token)
		assert.Contains(t, link.URL, "/static/")
		assert.Contains(t, link.URL, "?v="+link.Token)
	}
	assert.Equal(t, "base", report.Links[0].App)
	assert.Equal(t, "shop", report.Links[1].App)
}

func TestAssetsReportYAML(t *testing.T) {
	ctx := context.Background()
	proj, err := wireProject(ctx, writeProjectFixture(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reportAssets(ctx, proj, "shop", "yaml", &buf))

	var reports []assetReport
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "shop/cart.html", reports[0].Template)
	assert.Equal(t, "shop/index.html", reports[1].Template)
	// The cart inherits the base assets despite having none of its own.
	require.Len(t, reports[0].Links, 2)
	assert.Equal(t, "base", reports[0].Links[0].App)
}

func TestAssetsUnknownTargets(t *testing.T) {
	ctx := context.Background()
	proj, err := wireProject(ctx, writeProjectFixture(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = reportAssets(ctx, proj, "warehouse", "table", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no templates found for app")

	err = reportAssets(ctx, proj, "shop/missing.html", "table", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestAssetsUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	proj, err := wireProject(ctx, writeProjectFixture(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = reportAssets(ctx, proj, "", "csv", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func resultByName(t *testing.T, report *DoctorReport, name string) DiagnosticResult {
	t.Helper()
	for _, result := range report.Results {
		if result.Name == name {
			return result
		}
	}
	t.Fatalf("no %q result in report", name)
	return DiagnosticResult{}
}

func TestDoctorHealthyProject(t *testing.T) {
	cfg := writeProjectFixture(t)
	report := diagnose(context.Background(), cfg)

	assert.Equal(t, 0, report.Summary.Errors)
	assert.Equal(t, 0, report.Summary.Warnings)
	assert.Equal(t, "ok", resultByName(t, report, "Apps Root").Status)
	assert.Equal(t, "ok", resultByName(t, report, "Base Template").Status)
	assert.Equal(t, "ok", resultByName(t, report, "Inheritance").Status)
	assert.Equal(t, "ok", resultByName(t, report, "Assets").Status)
	assert.Equal(t, "ok", resultByName(t, report, "Port").Status)

	templates := resultByName(t, report, "Templates")
	assert.Equal(t, "ok", templates.Status)
	assert.Contains(t, templates.Message, "4 templates across 3 apps")
}

func TestDoctorMissingAppsRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Apps.Root = filepath.Join(t.TempDir(), "missing")
	cfg.Server.Port = 0

	report := diagnose(context.Background(), cfg)

	require.Equal(t, 1, report.Summary.Errors)
	assert.Equal(t, "error", resultByName(t, report, "Apps Root").Status)
	// Template checks are skipped when the root is unusable.
	assert.Len(t, report.Results, 2)
}

func TestDoctorMissingBaseTemplate(t *testing.T) {
	cfg := writeProjectFixture(t)
	cfg.Apps.Base = "base/missing.html"

	report := diagnose(context.Background(), cfg)

	result := resultByName(t, report, "Base Template")
	assert.Equal(t, "error", result.Status)
	assert.Contains(t, result.Message, "base/missing.html")
}

func TestDoctorBrokenExtends(t *testing.T) {
	cfg := writeProjectFixture(t)
	path := filepath.Join(cfg.Apps.Root, "shop", "templates", "broken.html")
	require.NoError(t, os.WriteFile(path, []byte("<!-- vellum: extends=\"ghost/none.html\" -->\n"), 0o644))

	report := diagnose(context.Background(), cfg)

	result := resultByName(t, report, "Inheritance")
	require.Equal(t, "error", result.Status)
	broken, ok := result.Details["broken"].([]string)
	require.True(t, ok)
	require.Len(t, broken, 1)
	assert.Contains(t, broken[0], "shop/broken.html")
}

func TestDoctorFlagsOrphanedAssets(t *testing.T) {
	cfg := writeProjectFixture(t)
	orphan := filepath.Join(cfg.Apps.Root, "shop", "styles", "old.css")
	require.NoError(t, os.WriteFile(orphan, []byte(".dead { }\n"), 0o644))

	report := diagnose(context.Background(), cfg)

	result := resultByName(t, report, "Assets")
	require.Equal(t, "warning", result.Status)
	orphans, ok := result.Details["orphans"].([]string)
	require.True(t, ok)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan, orphans[0])
	assert.Equal(t, 0, report.Summary.Errors)
}

func TestVersionCommandFormats(t *testing.T) {
	versionShort = false
	versionFormat = "bogus"
	require.Error(t, runVersion(versionCmd, nil))

	versionFormat = "text"
	require.NoError(t, runVersion(versionCmd, nil))

	versionShort = true
	require.NoError(t, runVersion(versionCmd, nil))
	versionShort = false
	versionFormat = "text"
}

func TestFormatFlagRejectsUnknownValueAtParse(t *testing.T) {
	flag := assetsCmd.Flags().Lookup("format")
	require.NotNil(t, flag)

	err := flag.Value.Set("csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, json, yaml")

	require.NoError(t, flag.Value.Set("JSON"))
	assert.Equal(t, "json", assetsFormat)

	require.NoError(t, flag.Value.Set("table"))
}
