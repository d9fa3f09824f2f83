package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bep/godartsass/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/webbundle/internal/buildplan"
)

const (
	assetNamespace = "webbundle-asset"
	styleNamespace = "webbundle-style"
)

// resolving marks resolve calls issued by our own plugins so they are not
// intercepted a second time
type resolving struct{}

func isResolving(args api.OnResolveArgs) bool {
	_, ok := args.PluginData.(resolving)
	return ok
}

func resolvePath(build api.PluginBuild, args api.OnResolveArgs) (string, error) {
	if filepath.IsAbs(args.Path) {
		return args.Path, nil
	}

	res := build.Resolve(args.Path, api.ResolveOptions{
		Importer:   args.Importer,
		ResolveDir: args.ResolveDir,
		Kind:       args.Kind,
		PluginData: resolving{},
	})
	if len(res.Errors) > 0 {
		return "", fmt.Errorf("could not resolve %q: %s", args.Path, res.Errors[0].Text)
	}

	return res.Path, nil
}

// assetPlugin handles image, media and font imports. Images at or below the
// rule's inline limit fall through to the dataurl loader, everything else is
// copied to its category template and referenced by URL. cssPublicPath
// prefixes URLs referenced from stylesheets.
func (p *Pipeline) assetPlugin(em *emitter, cssPublicPath string) api.Plugin {
	categories := []buildplan.Category{buildplan.CategoryImage, buildplan.CategoryMedia, buildplan.CategoryFont}

	return api.Plugin{
		Name: "webbundle-assets",
		Setup: func(build api.PluginBuild) {
			filter := p.filterFor(categories...)
			if filter == "" {
				return
			}

			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if isResolving(args) || strings.HasPrefix(args.Path, "data:") {
					return api.OnResolveResult{}, nil
				}

				abs, err := resolvePath(build, args)
				if err != nil {
					return api.OnResolveResult{}, err
				}

				r, ok := p.ruleFor(abs, categories...)
				if !ok {
					return api.OnResolveResult{}, nil
				}

				info, err := os.Stat(abs)
				if err != nil {
					return api.OnResolveResult{}, err
				}

				if r.Handling == buildplan.HandleAsset && info.Size() <= r.InlineLimit {
					return api.OnResolveResult{Path: abs, Namespace: "file"}, nil
				}

				rel, err := em.emitFile(abs, p.plan.Output.Template(r.Category))
				if err != nil {
					return api.OnResolveResult{}, err
				}

				if args.Kind == api.ResolveCSSURLToken || args.Kind == api.ResolveCSSImportRule {
					return api.OnResolveResult{Path: cssPublicPath + rel, External: true}, nil
				}

				return api.OnResolveResult{Path: abs, Namespace: assetNamespace, PluginData: rel}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: assetNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				url, _ := args.PluginData.(string)
				quoted, err := json.Marshal(url)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				contents := "export default " + string(quoted) + ";\n"
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// stylePlugin replaces stylesheets routed to the inject handler with a script
// that appends a style element at runtime
func (p *Pipeline) stylePlugin(em *emitter) api.Plugin {
	return api.Plugin{
		Name: "webbundle-styles",
		Setup: func(build api.PluginBuild) {
			filter := p.filterFor(buildplan.CategoryStyle)
			if filter == "" {
				return
			}

			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if isResolving(args) || args.Kind == api.ResolveCSSImportRule || args.Kind == api.ResolveCSSURLToken {
					return api.OnResolveResult{}, nil
				}

				abs, err := resolvePath(build, args)
				if err != nil {
					return api.OnResolveResult{}, err
				}

				r, ok := p.ruleFor(abs, buildplan.CategoryStyle)
				if !ok || r.Handling != buildplan.HandleInject {
					return api.OnResolveResult{Path: abs}, nil
				}

				return api.OnResolveResult{Path: abs, Namespace: styleNamespace}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: styleNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				css, err := p.compileStyle(em, args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				quoted, err := json.Marshal(css)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				contents := `(function(){var s=document.createElement("style");s.textContent=` + string(quoted) + `;document.head.appendChild(s);})();` + "\n"
				dir := filepath.Dir(args.Path)
				return api.OnLoadResult{Contents: &contents, ResolveDir: dir, Loader: api.LoaderJS, WatchFiles: []string{args.Path}}, nil
			})
		},
	}
}

// compileStyle bundles a single stylesheet to a string, resolving its
// imports and url() references
func (p *Pipeline) compileStyle(em *emitter, path string) (string, error) {
	opts := p.baseOptions()
	opts.EntryPoints = []string{path}
	opts.Plugins = []api.Plugin{p.assetPlugin(em, ""), p.sassPlugin()}
	opts.Sourcemap = api.SourceMapNone

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%w: %s", ErrBuildFailed, result.Errors[0].Text)
	}

	for _, f := range result.OutputFiles {
		if filepath.Ext(f.Path) == ".css" {
			return string(f.Contents), nil
		}
	}

	return "", nil
}

// sassPlugin compiles .scss and .sass sources with dart-sass
func (p *Pipeline) sassPlugin() api.Plugin {
	return api.Plugin{
		Name: "webbundle-sass",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.(sa|sc)ss$`, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				transpiler, err := p.transpiler()
				if err != nil {
					return api.OnLoadResult{}, fmt.Errorf("%s: %w", args.Path, err)
				}

				source, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				includePaths := []string{filepath.Dir(args.Path)}
				for _, m := range p.plan.Resolve.Modules {
					includePaths = append(includePaths, filepath.Join(p.projectDir, m))
				}

				res, err := transpiler.Execute(godartsass.Args{
					Source:       string(source),
					URL:          "file://" + filepath.ToSlash(args.Path),
					IncludePaths: includePaths,
					OutputStyle:  godartsass.OutputStyleExpanded,
					SourceSyntax: cond(filepath.Ext(args.Path) == ".sass", godartsass.SourceSyntaxSASS, godartsass.SourceSyntaxSCSS),
				})
				if err != nil {
					return api.OnLoadResult{}, fmt.Errorf("sass: %w", err)
				}

				dir := filepath.Dir(args.Path)
				return api.OnLoadResult{Contents: &res.CSS, ResolveDir: dir, Loader: api.LoaderCSS}, nil
			})
		},
	}
}

func (p *Pipeline) transpiler() (*godartsass.Transpiler, error) {
	p.sassOnce.Do(func() {
		if p.config.SassBinary == "" {
			p.sassErr = ErrSassUnavailable
			return
		}
		p.sass, p.sassErr = godartsass.Start(godartsass.Options{
			DartSassEmbeddedFilename: p.config.SassBinary,
		})
	})
	return p.sass, p.sassErr
}
