package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbundle/internal/assets"
	"github.com/wolfeidau/webbundle/internal/buildplan"
	"github.com/wolfeidau/webbundle/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Builder produces the files the dev server serves. Rebuild runs on source
// changes and must not remove outputs before their replacements are written.
type Builder interface {
	Build(ctx context.Context) (*assets.Result, error)
	Rebuild(ctx context.Context) (*assets.Result, error)
	OutputDir() string
}

type Options struct {
	// Project directory the watch glob and static directory are relative to
	ProjectDir string
	// NoOpen suppresses opening a browser even when the plan asks for it
	NoOpen bool
	// Opener overrides how the browser is launched
	Opener func(url string) error
	Logger *zerolog.Logger
}

// Server serves build output and rebuilds on source changes
type Server struct {
	config  buildplan.DevServer
	builder Builder
	opts    Options
	log     zerolog.Logger
	mu      sync.Mutex
}

func New(plan buildplan.BuildPlan, builder Builder, opts Options) (*Server, error) {
	if plan.Extensions.Dev == nil {
		return nil, ErrNotDevelopment
	}

	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	if opts.Opener == nil {
		opts.Opener = openBrowser
	}

	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}

	return &Server{
		config:  plan.Extensions.Dev.Server,
		builder: builder,
		opts:    opts,
		log:     l,
	}, nil
}

// Addr is the listen address from the plan
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Handler serves the output directory, falling back to the static directory
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.FileServer(fallbackFS{
		http.Dir(s.builder.OutputDir()),
		http.Dir(filepath.Join(s.opts.ProjectDir, s.config.StaticDir)),
	})

	if s.config.Compress {
		h = gzhttp.GzipHandler(h)
	}

	return logger.HTTPRequests(s.log)(h)
}

// Run builds once, then serves and watches until ctx is cancelled. A failed
// initial build is logged so the server can pick up the fix on the next change.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.rebuild(ctx, nil)

	watcher, err := NewWatcher(s.opts.ProjectDir, s.config.WatchGlob, func(files []string) {
		s.rebuild(ctx, files)
	})
	if err != nil {
		ln.Close()
		return err
	}

	srv := configureHTTPServer(s.Handler())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return watcher.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	url := "http://" + ln.Addr().String() + "/"
	s.log.Info().Str("url", url).Str("watch", s.config.WatchGlob).Msg("Dev server listening")

	if s.config.Open && !s.opts.NoOpen {
		if err := s.opts.Opener(url); err != nil {
			s.log.Warn().Err(err).Msg("Failed to open browser")
		}
	}

	return g.Wait()
}

func (s *Server) rebuild(ctx context.Context, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	build := s.builder.Build
	if len(files) > 0 {
		s.log.Info().Strs("files", files).Msg("Rebuilding")
		build = s.builder.Rebuild
	}

	if _, err := build(ctx); err != nil {
		s.log.Error().Err(err).Msg("Build failed")
	}
}

func configureHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// fallbackFS opens a file from the first file system containing it
type fallbackFS []http.FileSystem

func (f fallbackFS) Open(name string) (http.File, error) {
	for _, fs := range f {
		file, err := fs.Open(name)
		if err == nil {
			return file, nil
		}
	}
	return nil, os.ErrNotExist
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
