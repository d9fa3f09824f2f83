package devserver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reports changes to files under baseDir matching a glob such as
// src/**/*. Paths passed to the callback are slash separated and relative to
// baseDir.
type Watcher struct {
	baseDir  string
	root     string
	matchers []glob.Glob
	onChange func([]string)
	delay    time.Duration
}

func NewWatcher(baseDir, pattern string, onChange func([]string)) (*Watcher, error) {
	matchers, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		baseDir:  baseDir,
		root:     filepath.Join(baseDir, filepath.FromSlash(staticRoot(pattern))),
		matchers: matchers,
		onChange: onChange,
		delay:    debounceDelay,
	}, nil
}

// compileGlob compiles pattern with '/' as separator. A "/**/" segment also
// matches zero directories, so src/**/* matches src/index.js.
func compileGlob(pattern string) ([]glob.Glob, error) {
	patterns := []string{pattern}
	if strings.Contains(pattern, "/**/") {
		patterns = append(patterns, strings.Replace(pattern, "/**/", "/", 1))
	}

	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid watch glob %q: %w", pattern, err)
		}
		matchers = append(matchers, g)
	}

	return matchers, nil
}

// staticRoot returns the leading directories of pattern without glob syntax
func staticRoot(pattern string) string {
	var parts []string
	for _, part := range strings.Split(pattern, "/") {
		if strings.ContainsAny(part, "*?[{") {
			break
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

// Match reports whether a path relative to the base directory is watched
func (w *Watcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, m := range w.matchers {
		if m.Match(rel) {
			return true
		}
	}
	return false
}

// Run watches until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}

	debouncer := NewDebouncer(w.delay, w.onChange)
	defer debouncer.Stop()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, debouncer, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, debouncer *Debouncer, event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, event.Name); err != nil {
				log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	rel, err := filepath.Rel(w.baseDir, event.Name)
	if err != nil || !w.Match(rel) {
		return
	}

	log.Debug().Str("file", rel).Str("op", event.Op.String()).Msg("File changed")
	debouncer.Add(filepath.ToSlash(rel))
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}
