package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wolfeidau/webbundle/internal/buildplan"
)

const hashLength = 20

// emitter writes hashed files into the output directory. esbuild runs plugin
// callbacks concurrently so all state is guarded by mu.
type emitter struct {
	outDir   string
	mu       sync.Mutex
	manifest map[string]string
	files    map[string]struct{}
	sources  map[string]string
	// esbuild output path relative to outDir -> emitted path
	outputs map[string]string
}

func newEmitter(outDir string) *emitter {
	return &emitter{
		outDir:   outDir,
		manifest: make(map[string]string),
		files:    make(map[string]struct{}),
		sources:  make(map[string]string),
		outputs:  make(map[string]string),
	}
}

// emitFile copies a source asset using the template and returns its path
// relative to the output directory
func (e *emitter) emitFile(src, tmpl string) (string, error) {
	e.mu.Lock()
	rel, ok := e.sources[src]
	e.mu.Unlock()
	if ok {
		return rel, nil
	}

	contents, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read asset: %w", err)
	}

	ext := filepath.Ext(src)
	name := strings.TrimSuffix(filepath.Base(src), ext)

	rel, err = e.write(renderName(tmpl, name, ext, contentHash(contents)), contents)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.sources[src] = rel
	e.manifest[filepath.Base(src)] = rel
	e.mu.Unlock()

	return rel, nil
}

// emit writes bundle output under the template and records it in the manifest
func (e *emitter) emit(key, name, ext, tmpl string, contents []byte) (string, error) {
	rel, err := e.write(renderName(tmpl, name, ext, contentHash(contents)), contents)
	if err != nil {
		return "", err
	}

	if key != "" {
		e.mu.Lock()
		e.manifest[key] = rel
		e.mu.Unlock()
	}

	return rel, nil
}

func (e *emitter) write(rel string, contents []byte) (string, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	dest := filepath.Join(e.outDir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(dest, contents, 0o644); err != nil { //nolint:gosec
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}

	e.mu.Lock()
	e.files[rel] = struct{}{}
	e.mu.Unlock()

	return rel, nil
}

func (e *emitter) fileList() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	files := make([]string, 0, len(e.files))
	for f := range e.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func (e *emitter) assets() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.manifest))
	for k, v := range e.manifest {
		out[k] = v
	}
	return out
}

// renderName fills a filename template, ext includes the leading dot
func renderName(tmpl, name, ext, hash string) string {
	r := strings.NewReplacer(
		buildplan.NamePlaceholder, name,
		buildplan.HashPlaceholder, hash,
		buildplan.ExtPlaceholder, ext,
	)
	return r.Replace(tmpl)
}

func contentHash(contents []byte) string {
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:])[:hashLength]
}

// copyDir copies every regular file under src into dst
func copyDir(src, dst string) ([]string, error) {
	var copied []string

	err := filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := copyFile(p, target); err != nil {
			return err
		}

		copied = append(copied, filepath.ToSlash(rel))
		return nil
	})

	return copied, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
