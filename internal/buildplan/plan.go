package buildplan

// Mode selects the build profile
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
)

// ParseMode validates a raw mode value
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Development, Production:
		return Mode(s), nil
	default:
		return "", &InvalidModeError{Mode: s}
	}
}

// Category groups assets which share an output filename template
type Category string

const (
	CategoryScript Category = "script"
	CategoryStyle  Category = "style"
	CategoryImage  Category = "image"
	CategoryMedia  Category = "media"
	CategoryFont   Category = "font"
)

// Categories lists every asset category in a stable order
var Categories = []Category{CategoryScript, CategoryStyle, CategoryImage, CategoryMedia, CategoryFont}

// Filename template placeholders
const (
	NamePlaceholder = "[name]"
	HashPlaceholder = "[contenthash]"
	ExtPlaceholder  = "[ext]"
	IDPlaceholder   = "[id]"
)

// BuildPlan is the resolved configuration handed to the bundling engine.
//
// A plan is built fresh by every Resolve call and shares no maps or slices
// with any other plan, callers must treat it as read only.
type BuildPlan struct {
	Mode             Mode              `json:"mode" yaml:"mode"`
	EntryPoints      map[string]string `json:"entryPoints" yaml:"entryPoints"`
	Output           OutputRules       `json:"output" yaml:"output"`
	AssetRules       []AssetRule       `json:"assetRules" yaml:"assetRules"`
	PluginDirectives []PluginDirective `json:"pluginDirectives" yaml:"pluginDirectives"`
	Resolve          ResolveRules      `json:"resolve" yaml:"resolve"`
	Extensions       ModeExtensions    `json:"modeExtensions" yaml:"modeExtensions"`
}

type OutputRules struct {
	// Path of the output directory, relative to the project directory
	Path      string              `json:"path" yaml:"path"`
	Templates map[Category]string `json:"templates" yaml:"templates"`
}

// Template returns the filename template for the category
func (o OutputRules) Template(c Category) string {
	return o.Templates[c]
}

type ResolveRules struct {
	Modules []string `json:"modules" yaml:"modules"`
}

// Handling describes what the engine does with a matched file
type Handling string

const (
	HandleTranspile Handling = "transpile"
	HandleInject    Handling = "inject"
	HandleExtract   Handling = "extract"
	HandleAsset     Handling = "asset"
	HandleResource  Handling = "resource"
)

// AssetRule pairs a matcher with a handling directive. Include and Exclude are
// secondary patterns applied to paths that match Test.
type AssetRule struct {
	Category Category `json:"category" yaml:"category"`
	Test     string   `json:"test" yaml:"test"`
	Include  string   `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude  string   `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Handling Handling `json:"handling" yaml:"handling"`
	// Target is the language level scripts are transpiled to
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// PublicPath prefixes URLs emitted from extracted styles
	PublicPath string `json:"publicPath,omitempty" yaml:"publicPath,omitempty"`
	// InlineLimit is the size in bytes at or below which an asset is inlined as a data URL
	InlineLimit int64 `json:"inlineLimit,omitempty" yaml:"inlineLimit,omitempty"`
}

type PluginKind string

const (
	PluginStyleExtract PluginKind = "style-extract"
	PluginProgress     PluginKind = "progress"
	PluginClean        PluginKind = "clean"
	PluginHTML         PluginKind = "html"
	PluginCopy         PluginKind = "copy"
	PluginManifest     PluginKind = "manifest"
)

// PluginDirective is a single plugin invocation, only the options field
// matching Kind is set.
type PluginDirective struct {
	Kind         PluginKind           `json:"kind" yaml:"kind"`
	StyleExtract *StyleExtractOptions `json:"styleExtract,omitempty" yaml:"styleExtract,omitempty"`
	HTML         *HTMLOptions         `json:"html,omitempty" yaml:"html,omitempty"`
	Copy         *CopyOptions         `json:"copy,omitempty" yaml:"copy,omitempty"`
	Manifest     *ManifestOptions     `json:"manifest,omitempty" yaml:"manifest,omitempty"`
}

type StyleExtractOptions struct {
	Filename      string `json:"filename" yaml:"filename"`
	ChunkFilename string `json:"chunkFilename" yaml:"chunkFilename"`
}

type HTMLOptions struct {
	Template string `json:"template" yaml:"template"`
	Minify   bool   `json:"minify" yaml:"minify"`
}

type CopyOptions struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// ModeExtensions holds exactly one of Dev or Prod
type ModeExtensions struct {
	Dev  *DevExtensions  `json:"dev,omitempty" yaml:"dev,omitempty"`
	Prod *ProdExtensions `json:"prod,omitempty" yaml:"prod,omitempty"`
}

// Tag reports which variant is present
func (m ModeExtensions) Tag() Mode {
	switch {
	case m.Dev != nil:
		return Development
	case m.Prod != nil:
		return Production
	default:
		return ""
	}
}

type DevExtensions struct {
	SourceMap string    `json:"sourceMap" yaml:"sourceMap"`
	Server    DevServer `json:"server" yaml:"server"`
}

type DevServer struct {
	StaticDir string `json:"staticDir" yaml:"staticDir"`
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	WatchGlob string `json:"watchGlob" yaml:"watchGlob"`
	Open      bool   `json:"open" yaml:"open"`
	Compress  bool   `json:"compress" yaml:"compress"`
}

type ProdExtensions struct {
	Minimize        bool   `json:"minimize" yaml:"minimize"`
	DropConsole     bool   `json:"dropConsole" yaml:"dropConsole"`
	ExtractComments bool   `json:"extractComments" yaml:"extractComments"`
	ModuleIDs       string `json:"moduleIds" yaml:"moduleIds"`
}

// Directive returns the first directive of the given kind
func (p BuildPlan) Directive(kind PluginKind) (PluginDirective, bool) {
	for _, d := range p.PluginDirectives {
		if d.Kind == kind {
			return d, true
		}
	}
	return PluginDirective{}, false
}

// Rule returns the first asset rule for the category
func (p BuildPlan) Rule(c Category) (AssetRule, bool) {
	for _, r := range p.AssetRules {
		if r.Category == c {
			return r, true
		}
	}
	return AssetRule{}, false
}
