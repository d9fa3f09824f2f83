package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/wolfeidau/webbundle/internal/buildplan"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var scriptMediaType = regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`)

// entryAssets returns the emitted scripts and extracted stylesheets of the
// entry points, ordered by entry point
func (p *Pipeline) entryAssets(em *emitter) (scripts, styles []string) {
	if p.metadata == nil {
		return nil, nil
	}

	keys := make([]string, 0, len(p.metadata.Outputs))
	for k, info := range p.metadata.Outputs {
		if info.EntryPoint != "" && strings.HasSuffix(k, ".js") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if js, ok := em.outputs[p.outputRel(k)]; ok {
			scripts = append(scripts, js)
		}
		if bundle := p.metadata.Outputs[k].CSSBundle; bundle != "" {
			if css, ok := em.outputs[p.outputRel(bundle)]; ok {
				styles = append(styles, css)
			}
		}
	}

	return scripts, styles
}

// outputRel converts a metafile output key, relative to the working
// directory, to a path relative to the output directory
func (p *Pipeline) outputRel(key string) string {
	rel, err := filepath.Rel(p.outDir, filepath.Join(p.projectDir, filepath.FromSlash(key)))
	if err != nil {
		return key
	}
	return filepath.ToSlash(rel)
}

func (p *Pipeline) writeHTML(em *emitter, opts buildplan.HTMLOptions) error {
	src := filepath.Join(p.projectDir, opts.Template)

	tmpl, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read html template: %w", err)
	}

	scripts, styles := p.entryAssets(em)
	page, err := injectTags(string(tmpl), scripts, styles)
	if err != nil {
		return err
	}

	if opts.Minify {
		page, err = minifyHTML(page)
		if err != nil {
			return err
		}
	}

	_, err = em.write(filepath.Base(src), []byte(page))
	return err
}

// injectTags appends stylesheet links to the head and deferred scripts to the
// body of the parsed page. The parser synthesizes either element when missing.
func injectTags(page string, scripts, styles []string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse html template: %w", err)
	}

	head, body := findElement(doc, atom.Head), findElement(doc, atom.Body)
	if head == nil || body == nil {
		return "", fmt.Errorf("html template has no head or body element")
	}

	for _, s := range styles {
		head.AppendChild(element(atom.Link,
			html.Attribute{Key: "href", Val: s},
			html.Attribute{Key: "rel", Val: "stylesheet"},
		))
	}
	for _, s := range scripts {
		body.AppendChild(element(atom.Script,
			html.Attribute{Key: "defer", Val: "defer"},
			html.Attribute{Key: "src", Val: s},
		))
	}

	var buf strings.Builder
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return buf.String(), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// minifyHTML minifies the page along with its inline scripts and styles.
// Document and end tags are kept so the output stays readable by other tools.
func minifyHTML(page string) (string, error) {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(scriptMediaType, js.Minify)
	m.Add("text/html", &mhtml.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})

	out, err := m.String("text/html", page)
	if err != nil {
		return "", fmt.Errorf("failed to minify html: %w", err)
	}
	return out, nil
}
