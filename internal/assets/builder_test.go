package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/webbundle/internal/buildplan"
)

func writeFixture(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, contents, 0o600))
	}
}

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFixture(t, dir, map[string][]byte{
		"src/js/index.js": []byte(`import "../css/app.css";
import "../css/inline-critical.css";
import small from "../img/small.png";
import big from "../img/big.png";
import clip from "../media/clip.mp4";

console.log("debug-marker");

const img = document.createElement("img");
img.src = small;
img.dataset.big = big;
img.dataset.clip = clip;
document.body.appendChild(img);
`),
		"src/css/app.css": []byte(`@font-face { font-family: x; src: url(../font/x.woff2) format("woff2"); }
.app-marker { background: url(../img/big.png); font-family: x; }
`),
		"src/css/inline-critical.css": []byte(".critical-marker { color: red; }\n"),
		"src/img/small.png":           []byte("\x89PNG\r\n\x1a\nsmall"),
		"src/img/big.png":             bytes.Repeat([]byte{0x42}, 5000),
		"src/font/x.woff2":            []byte("wOF2\x00\x01\x00\x00font"),
		"src/media/clip.mp4":          []byte("\x00\x00\x00\x18ftypmp42clip"),
		"src/index.html": []byte(`<!DOCTYPE html>
<html>
  <head>
    <!-- page head -->
    <title>fixture</title>
  </head>
  <body>
    <h1>fixture</h1>
  </body>
</html>
`),
		"src/static/robots.txt": []byte("User-agent: *\n"),
	})

	return dir
}

func resolvePlan(t *testing.T, mode string) buildplan.BuildPlan {
	t.Helper()
	plan, err := buildplan.Resolve(mode,
		buildplan.WithMetadata(buildplan.Metadata{Name: "fixture", Version: "1.2.3"}),
		buildplan.WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }))
	require.NoError(t, err)
	return plan
}

func buildProject(t *testing.T, dir, mode string) *Result {
	t.Helper()
	p, err := New(resolvePlan(t, mode), Config{ProjectDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	res, err := p.Build(context.Background())
	require.NoError(t, err)
	return res
}

func readOutput(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "dist", filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestBuildProduction(t *testing.T) {
	dir := newProject(t)
	res := buildProject(t, dir, "production")

	m := res.Manifest
	require.Regexp(t, `^js/main\.[0-9a-f]{20}\.js$`, m["main.js"])
	require.Regexp(t, `^css/main\.[0-9a-f]{20}\.css$`, m["main.css"])
	require.Regexp(t, `^img/big\.[0-9a-f]{20}\.png$`, m["big.png"])
	require.Regexp(t, `^font/x\.[0-9a-f]{20}\.woff2$`, m["x.woff2"])
	require.Regexp(t, `^media/clip\.[0-9a-f]{20}\.mp4$`, m["clip.mp4"])
	require.NotContains(t, m, "small.png")
	require.Equal(t, "1.2.3", m["version"])
	require.Equal(t, "2024-01-02 03:04:05", m["created"])

	js := readOutput(t, dir, m["main.js"])
	require.NotContains(t, js, "debug-marker", "console calls are dropped")
	require.Contains(t, js, "data:image/png;base64,")
	require.Contains(t, js, "critical-marker", "inline styles are injected")
	require.NotContains(t, js, "app-marker", "standard styles are extracted")
	require.Contains(t, js, m["big.png"])
	require.Contains(t, js, m["clip.mp4"])

	css := readOutput(t, dir, m["main.css"])
	require.Contains(t, css, "app-marker")
	require.Contains(t, css, "../"+m["big.png"])
	require.Contains(t, css, "../"+m["x.woff2"])
	require.NotContains(t, css, "critical-marker")

	page := readOutput(t, dir, "index.html")
	require.Contains(t, page, `src="`+m["main.js"]+`"`)
	require.Contains(t, page, `href="`+m["main.css"]+`"`)
	require.Less(t, strings.Index(page, m["main.css"]), strings.Index(page, "</head>"))
	require.Less(t, strings.Index(page, m["main.js"]), strings.Index(page, "</body>"))
	require.NotContains(t, page, "page head")
	require.NotContains(t, page, "\n")

	require.Equal(t, "User-agent: *\n", readOutput(t, dir, "robots.txt"))

	var written map[string]string
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, dir, "assets-manifest.json")), &written))
	require.Equal(t, m, written)

	require.Contains(t, res.Files, m["main.js"])
	require.Contains(t, res.Files, "robots.txt")
	require.Contains(t, res.Files, "index.html")
}

func TestBuildDevelopment(t *testing.T) {
	dir := newProject(t)
	res := buildProject(t, dir, "development")

	m := res.Manifest
	require.Regexp(t, `^js/main\.[0-9a-f]{20}\.js$`, m["main.js"])
	require.NotContains(t, m, "main.css", "development injects all styles")

	js := readOutput(t, dir, m["main.js"])
	require.Contains(t, js, "debug-marker")
	require.Contains(t, js, "app-marker")
	require.Contains(t, js, "critical-marker")
	require.Contains(t, js, "sourceMappingURL=data:")
	require.Contains(t, js, m["big.png"])
	require.Contains(t, js, m["x.woff2"])
	require.NotContains(t, js, "../"+m["x.woff2"], "injected styles resolve from the page")
	require.Contains(t, js, m["clip.mp4"])

	page := readOutput(t, dir, "index.html")
	require.Contains(t, page, "<!-- page head -->")
	require.Contains(t, page, `<script defer="defer" src="`+m["main.js"]+`"></script>`)
	require.NotContains(t, page, "<link")
}

func TestBuildContentHashStable(t *testing.T) {
	dir := newProject(t)

	first := buildProject(t, dir, "production")
	second := buildProject(t, dir, "production")
	require.Equal(t, first.Manifest, second.Manifest)

	writeFixture(t, dir, map[string][]byte{
		"src/js/index.js": []byte("document.title = \"changed\";\n"),
	})
	third := buildProject(t, dir, "production")
	require.NotEqual(t, first.Manifest["main.js"], third.Manifest["main.js"])
}

func TestBuildCleansOutput(t *testing.T) {
	dir := newProject(t)
	writeFixture(t, dir, map[string][]byte{"dist/stale.txt": []byte("old")})

	res := buildProject(t, dir, "production")
	require.NotContains(t, res.Files, "stale.txt")
	_, err := os.Stat(filepath.Join(dir, "dist", "stale.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestBuildErrors(t *testing.T) {
	dir := newProject(t)
	writeFixture(t, dir, map[string][]byte{
		"src/js/index.js": []byte("import \"./missing.js\";\n"),
	})

	p, err := New(resolvePlan(t, "production"), Config{ProjectDir: dir})
	require.NoError(t, err)

	_, err = p.Build(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)
}

func TestBuildSassWithoutCompiler(t *testing.T) {
	dir := newProject(t)
	writeFixture(t, dir, map[string][]byte{
		"src/js/index.js":    []byte("import \"../css/theme.scss\";\n"),
		"src/css/theme.scss": []byte("$c: red;\n.theme { color: $c; }\n"),
	})

	p, err := New(resolvePlan(t, "production"), Config{ProjectDir: dir})
	require.NoError(t, err)

	_, err = p.Build(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)
}

func TestBuildCancelled(t *testing.T) {
	dir := newProject(t)
	p, err := New(resolvePlan(t, "production"), Config{ProjectDir: dir})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Build(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsIncompletePlan(t *testing.T) {
	_, err := New(buildplan.BuildPlan{}, DefaultConfig())
	require.Error(t, err)

	plan := resolvePlan(t, "production")
	plan.AssetRules = append(plan.AssetRules, buildplan.AssetRule{Category: buildplan.CategoryFont, Test: "("})
	_, err = New(plan, DefaultConfig())
	require.Error(t, err)
}

func TestMetafileWritten(t *testing.T) {
	dir := newProject(t)
	metafile := filepath.Join(t.TempDir(), "meta.json")

	p, err := New(resolvePlan(t, "production"), Config{ProjectDir: dir, MetafilePath: metafile})
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)

	var md BuildMetadata
	data, err := os.ReadFile(metafile)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &md))

	found := false
	for _, info := range md.Outputs {
		if strings.HasSuffix(info.EntryPoint, "index.js") {
			found = true
		}
	}
	require.True(t, found)
}

func TestRebuildKeepsOutputsUntilReplaced(t *testing.T) {
	dir := newProject(t)
	p, err := New(resolvePlan(t, "development"), Config{ProjectDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	first, err := p.Build(context.Background())
	require.NoError(t, err)
	writeFixture(t, dir, map[string][]byte{"dist/stale.txt": []byte("old")})

	// unchanged sources rebuild in place without removing the served bundle
	before, err := os.Stat(filepath.Join(dir, "dist", filepath.FromSlash(first.Manifest["main.js"])))
	require.NoError(t, err)
	again, err := p.Rebuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Manifest["main.js"], again.Manifest["main.js"])
	after, err := os.Stat(filepath.Join(dir, "dist", filepath.FromSlash(first.Manifest["main.js"])))
	require.NoError(t, err)
	require.Equal(t, before.Size(), after.Size())

	writeFixture(t, dir, map[string][]byte{
		"src/js/index.js": []byte("document.title = \"changed\";\n"),
	})
	changed, err := p.Rebuild(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Manifest["main.js"], changed.Manifest["main.js"])

	require.Contains(t, readOutput(t, dir, changed.Manifest["main.js"]), "changed")
	require.Contains(t, readOutput(t, dir, "index.html"), changed.Manifest["main.js"])

	for _, rel := range []string{first.Manifest["main.js"], "stale.txt"} {
		_, err := os.Stat(filepath.Join(dir, "dist", filepath.FromSlash(rel)))
		require.True(t, os.IsNotExist(err), rel)
	}
}

func TestProgressDirectiveLogsPhases(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	dir := newProject(t)
	buildProject(t, dir, "production")
	require.Contains(t, buf.String(), "Building assets")
	require.Contains(t, buf.String(), "Writing manifest")

	buf.Reset()
	plan := resolvePlan(t, "production")
	var directives []buildplan.PluginDirective
	for _, d := range plan.PluginDirectives {
		if d.Kind != buildplan.PluginProgress {
			directives = append(directives, d)
		}
	}
	plan.PluginDirectives = directives

	p, err := New(plan, Config{ProjectDir: dir})
	require.NoError(t, err)
	_, err = p.Build(context.Background())
	require.NoError(t, err)
	require.NotContains(t, buf.String(), "Building assets")
	require.Contains(t, buf.String(), "Build complete")
}
