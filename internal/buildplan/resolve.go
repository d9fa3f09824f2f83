package buildplan

import (
	"strconv"
	"time"
)

// Recognised override keys
const (
	EnvVersion         = "VERSION"
	EnvSourceDateEpoch = "SOURCE_DATE_EPOCH"
)

const (
	defaultVersion    = "0.0.0"
	imageInlineLimit  = 4 * 1024
	stylePattern      = `\.(sa|sc|c)ss$`
	inlineStyleFilter = `inline.*\.(sa|sc|c)ss$`
)

type options struct {
	env        map[string]string
	now        func() time.Time
	metadata   *Metadata
	projectDir string
}

type Option func(*options)

// WithEnv supplies overrides, unknown keys are ignored
func WithEnv(env map[string]string) Option {
	return func(o *options) {
		o.env = env
	}
}

// WithClock sets the clock used for the manifest timestamp
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMetadata skips reading package.json
func WithMetadata(md Metadata) Option {
	return func(o *options) {
		o.metadata = &md
	}
}

// WithProjectDir sets the directory package.json is read from
func WithProjectDir(dir string) Option {
	return func(o *options) {
		o.projectDir = dir
	}
}

// Resolve builds the plan for mode. It returns an *InvalidModeError, and no
// plan, unless mode is development or production.
func Resolve(mode string, opts ...Option) (BuildPlan, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return BuildPlan{}, err
	}

	o := &options{
		now:        time.Now,
		projectDir: ".",
	}
	for _, opt := range opts {
		opt(o)
	}

	prod := m == Production

	plan := BuildPlan{
		Mode: m,
		EntryPoints: map[string]string{
			"main": "./src/js/index.js",
		},
		Output: OutputRules{
			Path: "dist",
			Templates: map[Category]string{
				CategoryScript: "js/[name].[contenthash].js",
				CategoryStyle:  "css/[name].[contenthash].css",
				CategoryImage:  "img/[name].[contenthash][ext]",
				CategoryMedia:  "media/[name].[contenthash][ext]",
				CategoryFont:   "font/[name].[contenthash][ext]",
			},
		},
		AssetRules: assetRules(prod),
		Resolve: ResolveRules{
			Modules: []string{"./src", "./node_modules"},
		},
	}

	var head []PluginDirective
	if prod {
		head = append(head, PluginDirective{
			Kind: PluginStyleExtract,
			StyleExtract: &StyleExtractOptions{
				Filename:      plan.Output.Templates[CategoryStyle],
				ChunkFilename: "css/[id].[contenthash].css",
			},
		})
		plan.Extensions.Prod = &ProdExtensions{
			Minimize:        true,
			DropConsole:     true,
			ExtractComments: true,
			ModuleIDs:       "deterministic",
		}
	} else {
		plan.Extensions.Dev = &DevExtensions{
			SourceMap: "inline-source-map",
			Server: DevServer{
				StaticDir: "public",
				Host:      "localhost",
				Port:      9000,
				WatchGlob: "src/**/*",
				Open:      true,
				Compress:  true,
			},
		}
	}

	common := []PluginDirective{
		{Kind: PluginProgress},
		{Kind: PluginClean},
		{Kind: PluginHTML, HTML: &HTMLOptions{Template: "./src/index.html", Minify: prod}},
		{Kind: PluginCopy, Copy: &CopyOptions{From: "./src/static/", To: plan.Output.Path}},
		{Kind: PluginManifest, Manifest: o.manifest()},
	}

	directives := make([]PluginDirective, 0, len(head)+len(common))
	directives = append(directives, head...)
	directives = append(directives, common...)
	plan.PluginDirectives = directives

	return plan, nil
}

func assetRules(prod bool) []AssetRule {
	standard := AssetRule{
		Category: CategoryStyle,
		Test:     stylePattern,
		Exclude:  inlineStyleFilter,
		Handling: HandleInject,
	}
	if prod {
		standard.Handling = HandleExtract
		standard.PublicPath = "../"
	}

	return []AssetRule{
		{
			Category: CategoryScript,
			Test:     `\.js$`,
			Exclude:  `node_modules`,
			Handling: HandleTranspile,
			Target:   "es2015",
		},
		{
			Category: CategoryStyle,
			Test:     stylePattern,
			Include:  inlineStyleFilter,
			Handling: HandleInject,
		},
		standard,
		{
			Category:    CategoryImage,
			Test:        `\.(webp|heif|avif|png|jpg|jpeg|gif|svg)$`,
			Handling:    HandleAsset,
			InlineLimit: imageInlineLimit,
		},
		{
			Category: CategoryMedia,
			Test:     `\.(webm|mp4|m4v|mov|mkv|avchd|wmv|avi|mp3|wav|aac|flac|ogg|aiff|m4a|wma|dsd|amr)$`,
			Handling: HandleResource,
		},
		{
			Category: CategoryFont,
			Test:     `\.(woff|woff2|eot|ttf|otf)$`,
			Handling: HandleResource,
		},
	}
}

func (o *options) manifest() *ManifestOptions {
	md := o.metadata
	if md == nil {
		loaded := LoadMetadata(o.projectDir)
		md = &loaded
	}

	version := md.Version
	if v := o.env[EnvVersion]; v != "" {
		version = v
	}
	if version == "" {
		version = defaultVersion
	}

	created := o.now()
	if epoch, err := strconv.ParseInt(o.env[EnvSourceDateEpoch], 10, 64); err == nil {
		created = time.Unix(epoch, 0)
	}

	return &ManifestOptions{
		Output:  "assets-manifest.json",
		Version: version,
		Created: formatCreated(created),
	}
}
