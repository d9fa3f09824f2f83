package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbundle/internal/buildplan"
)

const legalSuffix = ".LEGAL.txt"

// Build runs esbuild with the plan's settings and then applies the remaining
// plugin directives in plan order
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	return p.build(ctx, false)
}

// Rebuild is Build for a directory that is being served. The clean directive
// is applied after emission by pruning files the build did not write, so
// existing outputs stay readable while the bundle is regenerated.
func (p *Pipeline) Rebuild(ctx context.Context) (*Result, error) {
	return p.build(ctx, true)
}

func (p *Pipeline) build(ctx context.Context, incremental bool) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	logger := log.With().
		Str("build_id", uuid.NewString()).
		Str("mode", string(p.plan.Mode)).
		Logger()

	progress := p.has(buildplan.PluginProgress)
	step := func(msg string) {
		if progress {
			logger.Info().Str("output", p.outDir).Msg(msg)
		}
	}

	clean := p.has(buildplan.PluginClean)
	if clean && !incremental {
		step("Cleaning output directory")
		if err := os.RemoveAll(p.outDir); err != nil {
			return nil, fmt.Errorf("failed to clean output directory: %w", err)
		}
	}
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	em := newEmitter(p.outDir)

	step("Building assets")
	if err := p.bundle(em, logger); err != nil {
		return nil, err
	}

	var manifest map[string]string
	for _, d := range p.plan.PluginDirectives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch d.Kind {
		case buildplan.PluginHTML:
			step("Rendering HTML")
			if err := p.writeHTML(em, *d.HTML); err != nil {
				return nil, err
			}
		case buildplan.PluginCopy:
			step("Copying static files")
			if err := p.copyStatic(em, *d.Copy, logger); err != nil {
				return nil, err
			}
		case buildplan.PluginManifest:
			step("Writing manifest")
			m, err := p.writeManifest(em, *d.Manifest)
			if err != nil {
				return nil, err
			}
			manifest = m
		}
	}

	if clean && incremental {
		step("Pruning stale outputs")
		if err := prune(p.outDir, append(em.fileList(), p.metafileRel())); err != nil {
			return nil, err
		}
	}

	result := &Result{
		Files:    em.fileList(),
		Manifest: manifest,
		Duration: time.Since(started),
	}

	logger.Info().
		Int("files", len(result.Files)).
		Dur("duration", result.Duration).
		Msg("Build complete")

	return result, nil
}

// baseOptions are shared by the main bundle and nested stylesheet builds
func (p *Pipeline) baseOptions() api.BuildOptions {
	minify := p.plan.Extensions.Prod != nil && p.plan.Extensions.Prod.Minimize

	loaders := map[string]api.Loader{
		".js":   api.LoaderJS,
		".css":  api.LoaderCSS,
		".scss": api.LoaderCSS,
		".sass": api.LoaderCSS,
	}
	for _, ext := range []string{".webp", ".heif", ".avif", ".png", ".jpg", ".jpeg", ".gif", ".svg"} {
		loaders[ext] = api.LoaderDataURL
	}

	nodePaths := make([]string, 0, len(p.plan.Resolve.Modules))
	for _, m := range p.plan.Resolve.Modules {
		nodePaths = append(nodePaths, filepath.Join(p.projectDir, m))
	}

	opts := api.BuildOptions{
		AbsWorkingDir:     p.projectDir,
		Bundle:            true,
		Write:             false,
		Outdir:            p.outDir,
		EntryNames:        "[name]",
		Loader:            loaders,
		NodePaths:         nodePaths,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		LogLevel:          api.LogLevelSilent,
	}

	if dev := p.plan.Extensions.Dev; dev != nil && strings.HasPrefix(dev.SourceMap, "inline") {
		opts.Sourcemap = api.SourceMapInline
	}

	if prod := p.plan.Extensions.Prod; prod != nil {
		if prod.DropConsole {
			opts.Drop = api.DropConsole
		}
		if prod.ExtractComments {
			opts.LegalComments = api.LegalCommentsExternal
		}
	}

	return opts
}

func (p *Pipeline) bundle(em *emitter, logger zerolog.Logger) error {
	if len(p.plan.EntryPoints) == 0 {
		return ErrNoEntryPoints
	}

	names := make([]string, 0, len(p.plan.EntryPoints))
	for name := range p.plan.EntryPoints {
		names = append(names, name)
	}
	sort.Strings(names)

	entryPoints := make([]api.EntryPoint, 0, len(names))
	for _, name := range names {
		entryPoints = append(entryPoints, api.EntryPoint{
			InputPath:  p.plan.EntryPoints[name],
			OutputPath: name,
		})
	}

	logger.Info().Strs("entrypoints", names).Msg("Bundling")

	cssPublicPath := ""
	for _, r := range p.plan.AssetRules {
		if r.Handling == buildplan.HandleExtract {
			cssPublicPath = r.PublicPath
		}
	}

	opts := p.baseOptions()
	opts.EntryPointsAdvanced = entryPoints
	opts.Format = api.FormatIIFE
	opts.Metafile = true
	opts.Target = p.target()
	opts.Plugins = []api.Plugin{p.assetPlugin(em, cssPublicPath), p.stylePlugin(em), p.sassPlugin()}

	result := api.Build(opts)

	for _, msg := range result.Warnings {
		logger.Warn().Str("warning", msg.Text).Msg("Build warning")
	}

	if len(result.Errors) > 0 {
		for _, msg := range result.Errors {
			ev := logger.Error().Str("error", msg.Text)
			if msg.Location != nil {
				ev = ev.Str("file", msg.Location.File).Int("line", msg.Location.Line)
			}
			ev.Msg("Build error")
		}
		return ErrBuildFailed
	}

	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return err
	}
	p.metadata = &metadata

	if p.config.MetafilePath != "" {
		if err := os.WriteFile(p.config.MetafilePath, []byte(result.Metafile), 0600); err != nil {
			return err
		}
	}

	return p.emitOutputs(em, result.OutputFiles, logger)
}

// emitOutputs renames esbuild output to the plan's templates. Legal comment
// files follow the output they were extracted from.
func (p *Pipeline) emitOutputs(em *emitter, files []api.OutputFile, logger zerolog.Logger) error {
	styleTemplate := p.plan.Output.Template(buildplan.CategoryStyle)
	if d, ok := p.plan.Directive(buildplan.PluginStyleExtract); ok && d.StyleExtract.Filename != "" {
		styleTemplate = d.StyleExtract.Filename
	}

	var legal []api.OutputFile

	for _, file := range files {
		rel, err := filepath.Rel(p.outDir, file.Path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.HasSuffix(rel, legalSuffix) {
			legal = append(legal, file)
			continue
		}

		ext := filepath.Ext(rel)
		name := strings.TrimSuffix(rel, ext)

		var tmpl string
		switch ext {
		case ".js":
			tmpl = p.plan.Output.Template(buildplan.CategoryScript)
		case ".css":
			tmpl = styleTemplate
		default:
			logger.Warn().Str("file", rel).Msg("Skipping unexpected output")
			continue
		}

		out, err := em.emit(name+ext, name, ext, tmpl, file.Contents)
		if err != nil {
			return err
		}
		em.outputs[rel] = out

		logger.Info().Str("file", out).Msg("Built file")
	}

	for _, file := range legal {
		rel, err := filepath.Rel(p.outDir, file.Path)
		if err != nil {
			return err
		}
		owner, ok := em.outputs[strings.TrimSuffix(filepath.ToSlash(rel), legalSuffix)]
		if !ok {
			continue
		}
		if _, err := em.write(owner+".LICENSE.txt", file.Contents); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) target() api.Target {
	r, ok := p.plan.Rule(buildplan.CategoryScript)
	if !ok {
		return api.ESNext
	}

	switch strings.ToLower(r.Target) {
	case "es5", "es2015", "es6":
		return api.ES2015
	case "es2016":
		return api.ES2016
	case "es2017":
		return api.ES2017
	case "es2018":
		return api.ES2018
	case "es2019":
		return api.ES2019
	case "es2020":
		return api.ES2020
	default:
		return api.ESNext
	}
}

func (p *Pipeline) copyStatic(em *emitter, opts buildplan.CopyOptions, logger zerolog.Logger) error {
	from := filepath.Join(p.projectDir, opts.From)
	to := filepath.Join(p.projectDir, opts.To)

	if _, err := os.Stat(from); os.IsNotExist(err) {
		logger.Debug().Str("from", from).Msg("No static directory, skipping copy")
		return nil
	}

	copied, err := copyDir(from, to)
	if err != nil {
		return fmt.Errorf("failed to copy static files: %w", err)
	}

	if rel, err := filepath.Rel(p.outDir, to); err == nil && !strings.HasPrefix(rel, "..") {
		em.mu.Lock()
		for _, f := range copied {
			em.files[filepath.ToSlash(filepath.Join(rel, f))] = struct{}{}
		}
		em.mu.Unlock()
	}

	return nil
}

func (p *Pipeline) writeManifest(em *emitter, opts buildplan.ManifestOptions) (map[string]string, error) {
	manifest := opts.Transform(em.assets())

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}

	if _, err := em.write(opts.Output, data); err != nil {
		return nil, err
	}

	return manifest, nil
}

// metafileRel is the metafile path relative to the output directory, empty
// when none is written
func (p *Pipeline) metafileRel() string {
	if p.config.MetafilePath == "" {
		return ""
	}

	abs, err := filepath.Abs(p.config.MetafilePath)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(p.outDir, abs)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(rel)
}

// prune removes files under dir that are not listed in keep, relative paths
// with forward slashes
func prune(dir string, keep []string) error {
	wanted := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		wanted[k] = struct{}{}
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if _, ok := wanted[filepath.ToSlash(rel)]; ok {
			return nil
		}
		return os.Remove(path)
	})
	if err != nil {
		return fmt.Errorf("failed to prune output directory: %w", err)
	}
	return nil
}
