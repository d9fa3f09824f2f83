package assets

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
	"github.com/wolfeidau/webbundle/internal/buildplan"
)

type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	Bytes      int          `json:"bytes"`
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path string `json:"path"`
}

// Result describes the files written by a build
type Result struct {
	// Files emitted, relative to the output directory
	Files []string
	// Manifest as written, including the version and created keys
	Manifest map[string]string
	Duration time.Duration
}

// Pipeline executes a build plan with esbuild
type Pipeline struct {
	plan       buildplan.BuildPlan
	config     Config
	projectDir string
	outDir     string
	rules      []rule

	sassOnce sync.Once
	sass     *godartsass.Transpiler
	sassErr  error

	metadata *BuildMetadata
	mu       sync.Mutex
}

// New creates a new asset pipeline for the plan
func New(plan buildplan.BuildPlan, config Config) (*Pipeline, error) {
	if plan.Extensions.Tag() == "" {
		return nil, fmt.Errorf("plan has no mode extensions")
	}

	projectDir, err := filepath.Abs(config.ProjectDir)
	if err != nil {
		return nil, err
	}

	rules := make([]rule, 0, len(plan.AssetRules))
	for _, ar := range plan.AssetRules {
		r, err := compileRule(ar)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	return &Pipeline{
		plan:       plan,
		config:     config,
		projectDir: projectDir,
		outDir:     filepath.Join(projectDir, plan.Output.Path),
		rules:      rules,
	}, nil
}

// OutputDir returns the absolute output directory
func (p *Pipeline) OutputDir() string {
	return p.outDir
}

// Close stops the sass compiler if one was started
func (p *Pipeline) Close() error {
	if p.sass != nil {
		return p.sass.Close()
	}
	return nil
}

type rule struct {
	buildplan.AssetRule
	test, include, exclude *regexp.Regexp
}

func compileRule(ar buildplan.AssetRule) (rule, error) {
	r := rule{AssetRule: ar}

	var err error
	if r.test, err = regexp.Compile(ar.Test); err != nil {
		return r, fmt.Errorf("invalid %s rule test %q: %w", ar.Category, ar.Test, err)
	}
	if ar.Include != "" {
		if r.include, err = regexp.Compile(ar.Include); err != nil {
			return r, fmt.Errorf("invalid %s rule include %q: %w", ar.Category, ar.Include, err)
		}
	}
	if ar.Exclude != "" {
		if r.exclude, err = regexp.Compile(ar.Exclude); err != nil {
			return r, fmt.Errorf("invalid %s rule exclude %q: %w", ar.Category, ar.Exclude, err)
		}
	}

	return r, nil
}

func (r rule) match(path string) bool {
	path = filepath.ToSlash(path)
	if !r.test.MatchString(path) {
		return false
	}
	if r.include != nil && !r.include.MatchString(path) {
		return false
	}
	if r.exclude != nil && r.exclude.MatchString(path) {
		return false
	}
	return true
}

// ruleFor returns the first rule of one of the categories matching path
func (p *Pipeline) ruleFor(path string, categories ...buildplan.Category) (rule, bool) {
	for _, r := range p.rules {
		for _, c := range categories {
			if r.Category == c && r.match(path) {
				return r, true
			}
		}
	}
	return rule{}, false
}

// filterFor joins the test patterns of the categories into one esbuild filter
func (p *Pipeline) filterFor(categories ...buildplan.Category) string {
	filter := ""
	seen := map[string]bool{}
	for _, r := range p.rules {
		for _, c := range categories {
			if r.Category != c || seen[r.Test] {
				continue
			}
			seen[r.Test] = true
			if filter != "" {
				filter += "|"
			}
			filter += "(" + r.Test + ")"
		}
	}
	return filter
}

func (p *Pipeline) has(kind buildplan.PluginKind) bool {
	_, ok := p.plan.Directive(kind)
	return ok
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
